package llm

import (
	"context"
	"fmt"
	"strings"
)

const mockEchoRunes = 200

// MockGateway answers without calling any API. It echoes the latest user
// turn, which is enough to exercise every session flow locally.
type MockGateway struct{}

var _ Gateway = (*MockGateway)(nil)

func NewMock() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	last = strings.TrimSpace(last)
	if r := []rune(last); len(r) > mockEchoRunes {
		last = string(r[:mockEchoRunes]) + "..."
	}
	return fmt.Sprintf("I hear you. You said %q. What do you already know about it?", last), nil
}
