package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/simpleflo/filescout/internal/observability"
)

// Engine evaluates requests against the built-in rules and any configured
// protected paths.
type Engine struct {
	logger       zerolog.Logger
	builtinRules []Rule
	homeDir      string
	protected    []string
}

// New creates a policy engine. Protected paths are refused for deletion
// together with everything beneath them; a leading ~ refers to the
// current user's home.
func New(protected []string) *Engine {
	homeDir, _ := os.UserHomeDir()
	return NewWithHome(homeDir, protected)
}

// NewWithHome is New with an explicit home directory.
func NewWithHome(homeDir string, protected []string) *Engine {
	e := &Engine{
		logger:  observability.Logger("policy"),
		homeDir: homeDir,
	}
	for _, p := range protected {
		if p = strings.TrimSpace(p); p != "" {
			e.protected = append(e.protected, e.normalizePath(p))
		}
	}

	e.builtinRules = e.initBuiltinRules()
	sort.SliceStable(e.builtinRules, func(i, j int) bool {
		return e.builtinRules[i].Priority < e.builtinRules[j].Priority
	})

	return e
}

// Evaluate evaluates a request and returns a decision. Deny rules are
// checked first; the first match wins. Warn rules only annotate.
func (e *Engine) Evaluate(req Request) *Decision {
	decision := &Decision{
		DecisionID: uuid.New().String(),
		Action:     req.Action,
		Path:       req.Path,
		Timestamp:  time.Now(),
		Actor:      req.Actor,
	}

	e.logger.Debug().
		Str("action", string(req.Action)).
		Str("path", req.Path).
		Msg("evaluating policy request")

	// Step 1: Built-in blocklist rules
	for _, rule := range e.builtinRules {
		if rule.Decision == Deny && rule.Matches(req) {
			decision.Decision = Deny
			decision.BlockReasons = append(decision.BlockReasons, rule.Reason)
			decision.Reason = rule.Reason
			e.recordDecision(decision)
			return decision
		}
	}

	// Step 2: Configured protected paths
	if violations := e.checkProtectedPaths(req.Path); len(violations) > 0 {
		decision.Decision = Deny
		decision.BlockReasons = violations
		decision.Reason = "Path is protected by configuration"
		e.recordDecision(decision)
		return decision
	}

	// Step 3: Warnings
	for _, rule := range e.builtinRules {
		if rule.Decision == Warn && rule.Matches(req) {
			decision.Warnings = append(decision.Warnings, rule.Reason)
		}
	}

	if len(decision.Warnings) > 0 {
		decision.Decision = Warn
		decision.Reason = "Request allowed with warnings"
	} else {
		decision.Decision = Allow
		decision.Reason = "No policy violations"
	}

	e.recordDecision(decision)
	return decision
}

// recordDecision logs the decision for the audit trail.
func (e *Engine) recordDecision(decision *Decision) {
	ev := e.logger.Info()
	if decision.Decision == Allow {
		ev = e.logger.Debug()
	}
	ev.Str("decision_id", decision.DecisionID).
		Str("decision", string(decision.Decision)).
		Str("action", string(decision.Action)).
		Str("path", decision.Path).
		Str("actor", decision.Actor).
		Strs("block_reasons", decision.BlockReasons).
		Strs("warnings", decision.Warnings).
		Msg("policy decision")
}

// initBuiltinRules initializes the built-in safety rules.
func (e *Engine) initBuiltinRules() []Rule {
	return []Rule{
		{
			ID:       "deny_root",
			Priority: 0,
			Condition: func(req Request) bool {
				return e.normalizePath(req.Path) == e.normalizePath("/")
			},
			Decision: Deny,
			Reason:   "Deleting the filesystem root is forbidden",
		},
		{
			ID:       "deny_home",
			Priority: 0,
			Condition: func(req Request) bool {
				return e.homeDir != "" && e.normalizePath(req.Path) == e.normalizePath(e.homeDir)
			},
			Decision: Deny,
			Reason:   "Deleting the home directory is forbidden",
		},
		{
			ID:       "deny_credentials",
			Priority: 0,
			Condition: func(req Request) bool {
				return e.matchesCredentialPaths(req.Path)
			},
			Decision: Deny,
			Reason:   "Deleting credential files is forbidden",
		},
		{
			ID:       "deny_system_paths",
			Priority: 0,
			Condition: func(req Request) bool {
				return e.matchesSystemPaths(req.Path)
			},
			Decision: Deny,
			Reason:   "Deleting from system directories is forbidden",
		},
		{
			ID:       "warn_hidden",
			Priority: 10,
			Condition: func(req Request) bool {
				return strings.HasPrefix(filepath.Base(req.Path), ".")
			},
			Decision: Warn,
			Reason:   "Path is hidden",
		},
	}
}

// Allowed paths that override system paths (temp directories are safe)
var allowedPaths = []string{
	"/tmp",
	"/var/tmp",
	"/var/folders",         // macOS per-user temp directory
	"/private/var/folders", // macOS resolved symlink
	"/private/tmp",         // macOS resolved symlink
}

// Credential locations relative to home
var credentialDirs = []string{
	".ssh",
	".gnupg",
	".aws",
	".config/gcloud",
	".azure",
	".kube",
	".docker",
	"Library/Keychains", // macOS
}

// checkProtectedPaths reports configured protected paths covering path.
func (e *Engine) checkProtectedPaths(path string) []string {
	violations := []string{}
	normalizedPath := e.normalizePath(path)

	for _, protected := range e.protected {
		if within(protected, normalizedPath) {
			violations = append(violations, fmt.Sprintf("Path %s is under protected path %s", path, protected))
		}
	}

	return violations
}

// isPathAllowed checks if a path is in the allowed list (e.g., temp directories).
func (e *Engine) isPathAllowed(normalizedPath string) bool {
	for _, allowed := range allowedPaths {
		if within(e.normalizePath(allowed), normalizedPath) {
			return true
		}
	}
	return false
}

func (e *Engine) matchesCredentialPaths(path string) bool {
	if e.homeDir == "" {
		return false
	}
	normalizedPath := e.normalizePath(path)

	for _, cred := range credentialDirs {
		if within(e.normalizePath(filepath.Join(e.homeDir, cred)), normalizedPath) {
			return true
		}
	}
	return false
}

func (e *Engine) matchesSystemPaths(path string) bool {
	normalizedPath := e.normalizePath(path)
	if e.isPathAllowed(normalizedPath) {
		return false
	}

	for _, sysPath := range systemPaths() {
		if within(e.normalizePath(sysPath), normalizedPath) {
			return true
		}
	}
	return false
}

func systemPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/System", "/Library", "/private", "/bin", "/sbin", "/usr"}
	case "windows":
		return []string{"C:\\Windows", "C:\\Program Files", "C:\\ProgramData"}
	default:
		return []string{"/etc", "/var", "/root", "/bin", "/sbin", "/usr", "/lib", "/boot", "/proc", "/sys", "/dev"}
	}
}

// normalizePath normalizes a path for comparison.
func (e *Engine) normalizePath(path string) string {
	// Expand home directory
	if strings.HasPrefix(path, "~") && e.homeDir != "" {
		path = filepath.Join(e.homeDir, path[1:])
	}

	path = filepath.Clean(path)

	// On Windows, normalize drive letter to uppercase
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		path = strings.ToUpper(path[:1]) + path[1:]
	}

	return path
}

// within reports whether target is parent or lies beneath it.
func within(parent, target string) bool {
	if target == parent {
		return true
	}
	if parent == string(filepath.Separator) {
		return false
	}
	return strings.HasPrefix(target, parent+string(filepath.Separator))
}
