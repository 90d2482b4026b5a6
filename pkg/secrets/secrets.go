// Package secrets deals with the credential tokens that deployment
// providers authenticate with.
//
// Tokens enter the process exclusively through the environment, named by
// the pipeline file's token_env/password_env keys.  Inside the process a
// token is carried as a Secret, which formats as "${NAME}" rather than as
// its value, so that an argv or an env dump reaching a log never contains
// the real credential.
package secrets

import (
	"fmt"
	"sort"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Secret is a named credential.  The zero Secret is empty and redacts to
// "${}".
type Secret struct {
	name  string
	value string
}

// New wraps an already-obtained credential value.  Most callers want
// FromEnv instead.
func New(name, value string) Secret {
	return Secret{name: name, value: value}
}

// Name returns the environment variable the secret was sourced from.
func (s Secret) Name() string { return s.name }

// Value returns the credential itself.  Hand this to nothing but the
// provider that needs it.
func (s Secret) Value() string { return s.value }

// String implements fmt.Stringer, redacting the value.
func (s Secret) String() string { return "${" + s.name + "}" }

// GoString implements fmt.GoStringer, redacting the value ("%#v" is how
// debug dumps usually leak).
func (s Secret) GoString() string { return "secrets.Secret{" + s.String() + "}" }

// Store holds the secrets a build run has resolved.
type Store struct {
	byName map[string]Secret
}

// FromEnv resolves each named variable through lookup (usually
// os.LookupEnv).  A variable that is unset or set-but-empty is an error;
// all such errors are reported together so that a misconfigured CI job
// lists every missing credential in one run.
func FromEnv(lookup func(key string) (string, bool), names ...string) (*Store, error) {
	st := &Store{byName: make(map[string]Secret, len(names))}
	var errs []error
	for _, name := range names {
		if _, have := st.byName[name]; have {
			continue
		}
		val, ok := lookup(name)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("secret environment variable %s is not set", name))
		case val == "":
			errs = append(errs, fmt.Errorf("secret environment variable %s is set but empty", name))
		default:
			st.byName[name] = New(name, val)
		}
	}
	if err := utilerrors.NewAggregate(errs); err != nil {
		return nil, err
	}
	return st, nil
}

// Get returns the secret sourced from the named variable.
func (st *Store) Get(name string) (Secret, bool) {
	sec, ok := st.byName[name]
	return sec, ok
}

// Names returns the sorted names of all held secrets.
func (st *Store) Names() []string {
	ret := make([]string, 0, len(st.byName))
	for name := range st.byName {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Redact replaces every occurrence of every held secret value in str with
// that secret's "${NAME}" form.  Run log lines and command renderings
// through this before they leave the process.
func (st *Store) Redact(str string) string {
	for _, sec := range st.byName {
		if sec.value == "" {
			continue
		}
		str = strings.ReplaceAll(str, sec.value, sec.String())
	}
	return str
}

// RedactArgv is Redact applied element-wise, for logging command lines.
func (st *Store) RedactArgv(argv []string) []string {
	ret := make([]string, len(argv))
	for i, arg := range argv {
		ret[i] = st.Redact(arg)
	}
	return ret
}
