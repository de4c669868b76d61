// Package prompt assembles the instruction preamble sent as the system
// message of every tutoring request.
//
// The preamble is a fixed base text describing how the tutor behaves,
// followed by a blank line and an addendum for the selected depth level.
// Everything here is pure: the same input always yields byte-identical text.
package prompt

import (
	"fmt"
	"strings"
)

// Depth selects how deep the tutor goes. The zero value, DepthUnset, marks a
// session that has not been started yet.
type Depth string

const (
	DepthUnset     Depth = ""
	DepthInterview Depth = "interview"
	DepthExam      Depth = "exam"
	DepthResearch  Depth = "research"
)

// DefaultDepth is used for any value SystemPrompt does not recognise.
const DefaultDepth = DepthExam

// Depths lists the selectable depth levels in display order.
func Depths() []Depth {
	return []Depth{DepthInterview, DepthExam, DepthResearch}
}

// ParseDepth maps user input ("Interview", " exam ") to a Depth. The boolean
// is false for anything that is not one of the three selectable levels.
func ParseDepth(s string) (Depth, bool) {
	switch d := Depth(strings.ToLower(strings.TrimSpace(s))); d {
	case DepthInterview, DepthExam, DepthResearch:
		return d, true
	default:
		return DepthUnset, false
	}
}

// Valid reports whether d is one of the selectable depth levels.
func (d Depth) Valid() bool {
	_, ok := ParseDepth(string(d))
	return ok
}

// Title returns the human label shown in status replies.
func (d Depth) Title() string {
	switch d {
	case DepthInterview:
		return "Interview Prep"
	case DepthExam:
		return "Exam Preparation"
	case DepthResearch:
		return "Research Report"
	default:
		return "Not started"
	}
}

const baseInstructions = `You are a study partner who explores Data Science and Machine Learning topics together with the student. You are a peer, not a lecturer.

Work through every question like this:
1. Before explaining, ask what the student already knows so you can build on it.
2. Explain in four steps: what came before, where it fell short, what replaced it, and how that solved the problem.
3. After explaining, ask the student to summarise the idea in their own words.
4. Challenge the summary with small, focused questions about what you just covered. Do not introduce new material while challenging.
5. When the topic is covered well enough for the chosen depth, say: "This topic is complete - you can move it to your notebook."
6. If a question is too large for one answer, propose splitting it into sections and handle them one at a time.

Use analogies or short old-versus-new comparisons only when they genuinely help.`

const (
	interviewAddendum = `DEPTH LEVEL: Interview Preparation

- Keep explanations short and practical.
- Focus on the concepts and questions that come up in interviews.
- Prefer real-world applications over derivations.
- Help the student state each idea clearly and confidently.`

	examAddendum = `DEPTH LEVEL: Exam Preparation

- Go to a moderate technical depth.
- Cover the concepts together with the key technical details.
- Point out common pitfalls and edge cases.
- Balance theory with worked examples.`

	researchAddendum = `DEPTH LEVEL: Research Report

- Give thorough, detailed explanations.
- Include the mathematical foundations where they matter.
- Discuss limitations, open problems, and current research directions.
- Encourage the student to question assumptions and trade-offs.`
)

// addendum returns the depth-specific text. Unrecognised values, including
// DepthUnset, use the exam addendum.
func addendum(d Depth) string {
	switch d {
	case DepthInterview:
		return interviewAddendum
	case DepthResearch:
		return researchAddendum
	case DepthExam:
		return examAddendum
	default:
		return examAddendum
	}
}

// SystemPrompt returns the complete instruction block for d: the base text,
// a blank line, then the depth addendum. It never fails.
func SystemPrompt(d Depth) string {
	return baseInstructions + "\n\n" + addendum(d)
}

// ReviewInstruction is injected as a user turn when the student asks for a
// recap of the session so far.
const ReviewInstruction = `Looking back over our conversation so far:
1. List the main topics we actually discussed.
2. For each one, give a one-sentence summary of what we covered.
3. Ask me which topic I would like to revisit.

Only list topics we really discussed. Do not mention anything we have not covered.`

// RecallInstruction wraps a previously saved answer so the model treats it as
// settled background from an earlier session rather than something the
// student just said.
func RecallInstruction(document string) string {
	return fmt.Sprintf(`[Recalled from a past session]
The text between the markers below is an understanding we already worked out together in an earlier session. It is a prior, already-settled understanding - not something I just said.

--- BEGIN SAVED UNDERSTANDING ---
%s
--- END SAVED UNDERSTANDING ---

Briefly remind me what it says, then ask me which I would like to do:
(a) refine it,
(b) connect it to what we are discussing now, or
(c) explore a different aspect of it.`, document)
}

// ExampleTopics lists starter topics offered to a new student.
func ExampleTopics() []string {
	return []string{
		"Bias-variance tradeoff",
		"Cross-validation techniques",
		"Feature engineering strategies",
		"Regularization (L1 vs L2)",
		"Gradient descent variants",
		"Overfitting and underfitting",
		"Evaluation metrics (precision, recall, F1)",
		"Decision trees vs random forests",
		"Neural network architectures",
		"Batch normalization",
	}
}
