package accounts

import (
	"bufio"
	"embed"
	"errors"
	"io/fs"
	"path"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

//go:embed passwords/*.txt
var defaultBlocklistFS embed.FS

const (
	PasswordMinLength = 10
	PasswordMaxLength = 50

	MsgPasswordLength      = "Passwords must be between 10 and 50 characters"
	MsgPasswordBlocklisted = "Enter a password that is harder to guess"
	MsgConfirmPassword     = "Please confirm your new password"
	MsgPasswordsDontMatch  = "The passwords you entered do not match"
)

// PasswordBlocklist is an immutable set of rejected passwords loaded once,
// on first use, from every file in a directory of wordlists. Lines are
// compared case-insensitively; blank lines and # comments are ignored.
type PasswordBlocklist struct {
	fsys  fs.FS
	dir   string
	once  sync.Once
	words map[string]struct{}
	err   error
}

// NewPasswordBlocklist creates a blocklist reading the files in dir of fsys.
func NewPasswordBlocklist(fsys fs.FS, dir string) *PasswordBlocklist {
	return &PasswordBlocklist{fsys: fsys, dir: dir}
}

// DefaultPasswordBlocklist returns a blocklist over the embedded wordlists.
func DefaultPasswordBlocklist() *PasswordBlocklist {
	return NewPasswordBlocklist(defaultBlocklistFS, "passwords")
}

// Load reads the wordlists. It is safe to call repeatedly and from many
// goroutines; only the first call does any work.
func (b *PasswordBlocklist) Load() error {
	b.once.Do(func() {
		b.words, b.err = loadWordlists(b.fsys, b.dir)
	})
	return b.err
}

// Contains reports whether password is blocked. A blocklist that failed to
// load blocks nothing.
func (b *PasswordBlocklist) Contains(password string) bool {
	if b == nil || b.Load() != nil {
		return false
	}
	_, ok := b.words[strings.ToLower(strings.TrimSpace(password))]
	return ok
}

// Len returns the number of distinct blocked passwords.
func (b *PasswordBlocklist) Len() int {
	if b == nil || b.Load() != nil {
		return 0
	}
	return len(b.words)
}

func loadWordlists(fsys fs.FS, dir string) (map[string]struct{}, error) {
	if fsys == nil {
		return nil, goerrors.New("password blocklist filesystem is required", goerrors.CategoryInternal)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read password blocklist directory").
			WithMetadata(map[string]any{"dir": dir})
	}

	words := map[string]struct{}{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := readWordlist(fsys, path.Join(dir, entry.Name()), words); err != nil {
			return nil, err
		}
	}
	return words, nil
}

func readWordlist(fsys fs.FS, name string, words map[string]struct{}) error {
	f, err := fsys.Open(name)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open password wordlist").
			WithMetadata(map[string]any{"file": name})
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words[strings.ToLower(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read password wordlist").
			WithMetadata(map[string]any{"file": name})
	}
	return nil
}

// PasswordPolicy holds the new password rules shared by every flow that
// sets a password.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
	Blocklist *PasswordBlocklist
}

// DefaultPasswordPolicy returns the 10 to 50 character policy over blocklist.
func DefaultPasswordPolicy(blocklist *PasswordBlocklist) PasswordPolicy {
	return PasswordPolicy{
		MinLength: PasswordMinLength,
		MaxLength: PasswordMaxLength,
		Blocklist: blocklist,
	}
}

// NewPasswordRules validates a new password field. requiredMsg differs per
// flow ("You must enter a new password" vs "You must enter a password").
func (p PasswordPolicy) NewPasswordRules(requiredMsg string) []validation.Rule {
	minLen, maxLen := p.MinLength, p.MaxLength
	if minLen == 0 {
		minLen = PasswordMinLength
	}
	if maxLen == 0 {
		maxLen = PasswordMaxLength
	}

	return []validation.Rule{
		validation.Required.Error(requiredMsg),
		validation.Length(minLen, maxLen).Error(MsgPasswordLength),
		validation.By(func(value any) error {
			s, _ := value.(string)
			if p.Blocklist.Contains(s) {
				return errors.New(MsgPasswordBlocklisted)
			}
			return nil
		}),
	}
}

// ConfirmationRules validates a confirmation field against password.
func (p PasswordPolicy) ConfirmationRules(password string) []validation.Rule {
	return []validation.Rule{
		validation.Required.Error(MsgConfirmPassword),
		validation.By(ValidateStringEquals(password, MsgPasswordsDontMatch)),
	}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str, msg string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New(msg)
		}
		return nil
	}
}
