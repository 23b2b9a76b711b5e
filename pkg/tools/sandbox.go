package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adiwardana/pandu/pkg/config"
	"github.com/adiwardana/pandu/pkg/errdefs"
)

// Sandbox enforces filesystem and shell safety. The dangerous-command
// blocklist applies unconditionally; everything else can be relaxed by
// turning sandbox mode off.
type Sandbox struct {
	enabled            bool
	workDir            string
	allowedExtensions  map[string]bool
	blockedPaths       []string
	maxFileSize        int64
	commandWhitelist   map[string]bool
	superuserMode      bool
	requireSudoConfirm bool
	sudoWhitelist      map[string]bool
	dangerousCommands  []string
}

func NewSandbox(cfg *config.ToolsConfig) (*Sandbox, error) {
	workDir, err := filepath.Abs(cfg.WorkingDirectory)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	s := &Sandbox{
		enabled:            cfg.SandboxMode == nil || *cfg.SandboxMode,
		workDir:            workDir,
		allowedExtensions:  make(map[string]bool, len(cfg.AllowedExtensions)),
		blockedPaths:       cfg.BlockedPaths,
		maxFileSize:        int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		commandWhitelist:   make(map[string]bool, len(cfg.CommandWhitelist)),
		superuserMode:      cfg.SuperuserMode,
		requireSudoConfirm: cfg.RequireSudoConfirmation == nil || *cfg.RequireSudoConfirmation,
		sudoWhitelist:      make(map[string]bool, len(cfg.SudoWhitelist)),
		dangerousCommands:  cfg.DangerousCommands,
	}
	for _, ext := range cfg.AllowedExtensions {
		s.allowedExtensions[strings.ToLower(ext)] = true
	}
	for _, cmd := range cfg.CommandWhitelist {
		s.commandWhitelist[cmd] = true
	}
	for _, cmd := range cfg.SudoWhitelist {
		s.sudoWhitelist[cmd] = true
	}
	return s, nil
}

// WorkDir returns the absolute workspace root.
func (s *Sandbox) WorkDir() string {
	return s.workDir
}

// MaxFileSize returns the file size cap in bytes.
func (s *Sandbox) MaxFileSize() int64 {
	return s.maxFileSize
}

// Resolve turns a tool-supplied path into an absolute path under the
// workspace.
func (s *Sandbox) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.workDir, filepath.Clean(path))
}

// PathEscapes reports whether a path resolves outside the workspace.
func (s *Sandbox) PathEscapes(path string) bool {
	resolved := s.Resolve(path)
	return resolved != s.workDir && !strings.HasPrefix(resolved, s.workDir+string(filepath.Separator))
}

// ValidatePath enforces path rules. Blocked path prefixes are refused
// regardless of sandbox mode; workspace containment and the extension
// list apply only while the sandbox is enabled. write additionally
// checks the allowed extension list.
func (s *Sandbox) ValidatePath(path string, write bool) error {
	if path == "" {
		return errdefs.New(errdefs.KindToolValidation, "path cannot be empty")
	}

	resolved := s.Resolve(path)
	for _, blocked := range s.blockedPaths {
		if resolved == blocked || strings.HasPrefix(resolved, blocked+string(filepath.Separator)) {
			return errdefs.New(errdefs.KindSafety, "path %q is blocked", path).
				WithDetail("path", path)
		}
	}

	if !s.enabled {
		return nil
	}

	if s.PathEscapes(path) {
		return errdefs.New(errdefs.KindSafety, "path %q escapes working directory", path).
			WithDetail("path", path)
	}

	if write {
		ext := strings.ToLower(filepath.Ext(resolved))
		if ext != "" && !s.allowedExtensions[ext] {
			return errdefs.New(errdefs.KindSafety, "extension %q not allowed", ext).
				WithDetail("path", path).
				WithDetail("extension", ext)
		}
	}
	return nil
}

// ValidateCommand enforces the shell policy: the dangerous blocklist
// always applies, every segment of a compound command is checked
// individually, sudo segments need superuser mode plus the sudo
// whitelist, and with the sandbox enabled every other segment must
// start with a whitelisted executable.
func (s *Sandbox) ValidateCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return errdefs.New(errdefs.KindToolValidation, "command cannot be empty")
	}

	lower := strings.ToLower(trimmed)
	for _, dangerous := range s.dangerousCommands {
		if strings.Contains(lower, strings.ToLower(dangerous)) {
			return errdefs.New(errdefs.KindSafety, "dangerous command refused: matches %q", dangerous).
				WithDetail("command", trimmed)
		}
	}

	for _, segment := range splitSegments(trimmed) {
		fields := strings.Fields(segment)
		if len(fields) == 0 {
			continue
		}
		base := filepath.Base(fields[0])

		// The sudo policy holds in every segment, sandbox on or off.
		if base == "sudo" {
			if !s.superuserMode {
				return errdefs.New(errdefs.KindSafety, "sudo requires superuser_mode").
					WithDetail("command", trimmed)
			}
			target := ""
			if len(fields) > 1 {
				target = filepath.Base(fields[1])
			}
			if !s.sudoWhitelist[target] {
				return errdefs.New(errdefs.KindSafety, "command %q not in sudo whitelist", target).
					WithDetail("command", trimmed)
			}
			continue
		}

		if s.enabled && !s.commandWhitelist[base] {
			return errdefs.New(errdefs.KindSafety, "command %q not whitelisted", base).
				WithDetail("command", trimmed)
		}
	}
	return nil
}

// SudoNeedsConfirmation reports whether a sudo command must be
// confirmed even when the policy would otherwise execute.
func (s *Sandbox) SudoNeedsConfirmation(command string) bool {
	return s.requireSudoConfirm && strings.HasPrefix(strings.TrimSpace(command), "sudo ")
}

// splitSegments breaks a compound command at pipes, separators and
// redirections so each stage's executable is checked.
func splitSegments(command string) []string {
	f := func(r rune) bool {
		switch r {
		case '|', ';', '&', '>', '<':
			return true
		}
		return false
	}
	return strings.FieldsFunc(command, f)
}
