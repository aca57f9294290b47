package orchestratornode

import (
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

func TestNormalizeRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     contractx.ChatRequest
		wantErr bool
	}{
		{name: "valid", req: contractx.ChatRequest{Message: " weather in Tokyo ", SessionID: " s1 "}},
		{name: "empty message", req: contractx.ChatRequest{Message: ""}, wantErr: true},
		{name: "blank message", req: contractx.ChatRequest{Message: " \t\n"}, wantErr: true},
		{name: "session id too long", req: contractx.ChatRequest{Message: "hi", SessionID: strings.Repeat("s", 129)}, wantErr: true},
		{name: "user id too long", req: contractx.ChatRequest{Message: "hi", UserID: strings.Repeat("u", 129)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeRequest(tt.req)
			if tt.wantErr {
				if !errors.Is(err, contractx.ErrInvalidRequest) {
					t.Fatalf("NormalizeRequest() error = %v, want ErrInvalidRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeRequest() error = %v", err)
			}
			if got.Message != "weather in Tokyo" || got.SessionID != "s1" {
				t.Fatalf("request = %+v", got)
			}
		})
	}
}
