// Package plan reads and writes plan files.
//
// A plan file is a markdown document with a YAML frontmatter block. Warren
// only interprets the identity and status fields; the body and any other
// frontmatter keys pass through writes untouched.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// StatusPending marks a plan that has not been started. Releasing a claim
// with --reset-status rewrites the plan to this value.
const StatusPending = "pending"

const frontmatterDelimiter = "---"

// ErrNotFound indicates no plan file matched an identifier.
var ErrNotFound = errors.New("plan not found")

// Plan is a parsed plan file.
type Plan struct {
	// Path is where the plan was read from. Not serialized.
	Path string `yaml:"-"`

	ID        *int64   `yaml:"id,omitempty"`
	UUID      string   `yaml:"uuid,omitempty"`
	Title     string   `yaml:"title,omitempty"`
	Status    string   `yaml:"status,omitempty"`
	IssueURLs []string `yaml:"issue,omitempty"`

	// Extra preserves frontmatter keys warren does not interpret.
	Extra map[string]any `yaml:",inline"`

	// Body is the markdown content after the frontmatter block.
	Body string `yaml:"-"`
}

// EnsureUUID assigns a fresh UUID when the plan has none. Returns true if
// one was assigned.
func (p *Plan) EnsureUUID() bool {
	if strings.TrimSpace(p.UUID) != "" {
		return false
	}
	p.UUID = uuid.NewString()
	return true
}

// Read parses the plan file at path.
func Read(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	frontmatter, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", path, err)
	}

	var p Plan
	if err := yaml.Unmarshal([]byte(frontmatter), &p); err != nil {
		return nil, fmt.Errorf("parse plan frontmatter %s: %w", path, err)
	}
	p.Path = path
	p.Body = body
	return &p, nil
}

// Write serializes the plan back to path, preserving uninterpreted
// frontmatter keys and the body.
func Write(path string, p *Plan) error {
	frontmatter, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal plan frontmatter: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(frontmatterDelimiter + "\n")
	builder.Write(frontmatter)
	builder.WriteString(frontmatterDelimiter + "\n")
	builder.WriteString(p.Body)

	if err := os.WriteFile(path, []byte(builder.String()), 0o644); err != nil {
		return fmt.Errorf("write plan file: %w", err)
	}
	return nil
}

func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(trimmed, frontmatterDelimiter+"\n") {
		return "", content, nil
	}

	rest := trimmed[len(frontmatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelimiter+"\n")
	if end < 0 {
		if strings.HasSuffix(rest, "\n"+frontmatterDelimiter) {
			return rest[:len(rest)-len(frontmatterDelimiter)-1], "", nil
		}
		return "", "", fmt.Errorf("unterminated frontmatter block")
	}

	frontmatter := rest[:end+1]
	body := rest[end+len(frontmatterDelimiter)+2:]
	return frontmatter, body, nil
}

// Resolve maps a plan identifier to a plan file path. The identifier may be
// a file path, a plan UUID, or a numeric plan id; UUIDs and ids are matched
// against *.plan.md files under searchDir.
func Resolve(identifier, searchDir string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("plan identifier is empty")
	}

	if info, err := os.Stat(identifier); err == nil && !info.IsDir() {
		return filepath.Abs(identifier)
	}

	wantUUID := ""
	if parsed, err := uuid.Parse(identifier); err == nil {
		wantUUID = parsed.String()
	}
	var wantID *int64
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		wantID = &id
	}

	var found string
	err := filepath.WalkDir(searchDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() || found != "" {
			return err
		}
		if !strings.HasSuffix(entry.Name(), ".plan.md") {
			return nil
		}

		p, readErr := Read(path)
		if readErr != nil {
			// Unparseable plan files are skipped, not fatal.
			return nil
		}
		if wantUUID != "" && strings.EqualFold(p.UUID, wantUUID) {
			found = path
			return nil
		}
		if wantID != nil && p.ID != nil && *p.ID == *wantID {
			found = path
			return nil
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan plans in %s: %w", searchDir, err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, identifier)
	}
	return filepath.Abs(found)
}
