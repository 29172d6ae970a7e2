package policy

import (
	"path/filepath"
	"runtime"
	"testing"
)

const testHome = "/home/tester"

func testEngine(protected ...string) *Engine {
	return NewWithHome(testHome, protected)
}

func TestEngine_EvaluateDenyRoot(t *testing.T) {
	engine := testEngine()

	decision := engine.Evaluate(Request{Action: ActionDelete, Path: "/", IsDir: true})

	if decision.Decision != Deny {
		t.Errorf("expected DENY for root, got %s", decision.Decision)
	}
	if len(decision.BlockReasons) == 0 {
		t.Error("expected block reasons for denied request")
	}
	if decision.Allowed() {
		t.Error("denied decision should not be allowed")
	}
}

func TestEngine_EvaluateDenyHome(t *testing.T) {
	engine := testEngine()

	for _, path := range []string{testHome, testHome + "/"} {
		decision := engine.Evaluate(Request{Action: ActionDelete, Path: path, IsDir: true})
		if decision.Decision != Deny {
			t.Errorf("expected DENY for %s, got %s", path, decision.Decision)
		}
	}
}

func TestEngine_EvaluateDenyCredentials(t *testing.T) {
	engine := testEngine()

	sensitiveSpots := []string{
		filepath.Join(testHome, ".ssh"),
		filepath.Join(testHome, ".ssh", "id_ed25519"),
		filepath.Join(testHome, ".aws", "credentials"),
		filepath.Join(testHome, ".gnupg"),
		filepath.Join(testHome, ".config", "gcloud", "adc.json"),
	}

	for _, path := range sensitiveSpots {
		decision := engine.Evaluate(Request{Action: ActionDelete, Path: path})
		if decision.Decision != Deny {
			t.Errorf("expected DENY for %s, got %s", path, decision.Decision)
		}
	}
}

func TestEngine_EvaluateDenySystemPaths(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("system path list is platform specific")
	}
	engine := testEngine()

	for _, path := range []string{"/etc/hosts", "/var/log/syslog", "/usr/bin/env", "/root/notes.txt"} {
		decision := engine.Evaluate(Request{Action: ActionDelete, Path: path})
		if decision.Decision != Deny {
			t.Errorf("expected DENY for %s, got %s", path, decision.Decision)
		}
	}
}

func TestEngine_EvaluateAllowTempDirs(t *testing.T) {
	engine := testEngine()

	for _, path := range []string{"/tmp/scratch.txt", "/var/tmp/build", "/tmp"} {
		decision := engine.Evaluate(Request{Action: ActionDelete, Path: path})
		if decision.Decision != Allow {
			t.Errorf("expected ALLOW for %s, got %s (%s)", path, decision.Decision, decision.Reason)
		}
	}
}

func TestEngine_EvaluateAllowOrdinaryFile(t *testing.T) {
	engine := testEngine()

	decision := engine.Evaluate(Request{Action: ActionDelete, Path: filepath.Join(testHome, "Downloads", "old.zip")})

	if decision.Decision != Allow {
		t.Errorf("expected ALLOW, got %s (%s)", decision.Decision, decision.Reason)
	}
	if decision.DecisionID == "" {
		t.Error("expected a decision id")
	}
	if decision.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestEngine_EvaluateWarnHidden(t *testing.T) {
	engine := testEngine()

	decision := engine.Evaluate(Request{Action: ActionDelete, Path: filepath.Join(testHome, "project", ".env.bak")})

	if decision.Decision != Warn {
		t.Errorf("expected WARN for hidden file, got %s", decision.Decision)
	}
	if len(decision.Warnings) != 1 {
		t.Errorf("expected 1 warning, got %v", decision.Warnings)
	}
	if !decision.Allowed() {
		t.Error("warned decision should be allowed")
	}
}

func TestEngine_ProtectedPaths(t *testing.T) {
	engine := testEngine("~/Documents/taxes", "/srv/archive", "  ")

	tests := []struct {
		path string
		want DecisionType
	}{
		{filepath.Join(testHome, "Documents", "taxes"), Deny},
		{filepath.Join(testHome, "Documents", "taxes", "2024.pdf"), Deny},
		{filepath.Join(testHome, "Documents", "taxes-old.pdf"), Allow},
		{"/srv/archive/a.tar", Deny},
		{"/srv/other", Allow},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			decision := engine.Evaluate(Request{Action: ActionDelete, Path: tt.path})
			if decision.Decision != tt.want {
				t.Errorf("Evaluate(%s) = %s, want %s", tt.path, decision.Decision, tt.want)
			}
		})
	}
}

func TestEngine_NoHome(t *testing.T) {
	engine := NewWithHome("", nil)

	decision := engine.Evaluate(Request{Action: ActionDelete, Path: "/data/.ssh"})
	if decision.Decision == Deny {
		t.Errorf("credential rules need a home directory, got %s", decision.Decision)
	}
}

func TestRule_Matches(t *testing.T) {
	var empty Rule
	if empty.Matches(Request{Path: "/x"}) {
		t.Error("rule without condition should not match")
	}

	rule := Rule{Condition: func(r Request) bool { return r.IsDir }}
	if !rule.Matches(Request{IsDir: true}) {
		t.Error("expected rule to match directory request")
	}
}
