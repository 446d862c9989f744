package tools

import (
	"context"
	"testing"
	"time"
)

func TestApprovalGateAutoDeniesWithoutChannel(t *testing.T) {
	g := NewApprovalGate(nil, 0)
	decision, err := g.Ask(context.Background(), "run_shell", nil)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if decision != Deny {
		t.Error("expected auto-deny with no approval channel configured")
	}
}

func TestApprovalGateHonorsApprove(t *testing.T) {
	g := NewUnboundedQueueApprovalGate(time.Second)
	go func() {
		req := <-g.Requests()
		req.Respond <- Approve
	}()
	decision, err := g.Ask(context.Background(), "run_shell", map[string]string{"command": "ls"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if decision != Approve {
		t.Error("expected approval to be honored")
	}
}

func TestApprovalGateTimesOutToDeny(t *testing.T) {
	g := NewUnboundedQueueApprovalGate(20 * time.Millisecond)
	go func() {
		<-g.Requests() // receive but never respond
	}()
	decision, err := g.Ask(context.Background(), "run_shell", nil)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if decision != Deny {
		t.Error("expected timeout to resolve to deny")
	}
}
