// Package credentials turns the credential references attached to an image copy
// request into the username, password and registry endpoint used to log in.
package credentials

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a credential reference string.
type Kind string

const (
	// KindARN is a Secrets Manager secret ARN.
	KindARN Kind = "ARN"
	// KindInline is a literal "username:password" pair.
	KindInline Kind = "INLINE"
	// KindName is a secret name looked up in the secret store.
	KindName Kind = "NAME"
)

const arnPrefix = "arn:aws"

// Classify maps every string to exactly one Kind. ARNs contain colons too, so the
// prefix check must come first.
func Classify(s string) Kind {
	switch {
	case strings.HasPrefix(s, arnPrefix):
		return KindARN
	case strings.Contains(s, ":"):
		return KindInline
	default:
		return KindName
	}
}

// ErrInvalidReference is returned for credential properties of an unsupported shape.
var ErrInvalidReference = errors.New("invalid credential reference")

// Reference describes where the credentials for one image come from.
// The zero value means no reference was supplied.
type Reference struct {
	// Value is the inline pair, the secret ARN or the secret name.
	Value string
	Kind  Kind
	// UsernameKey and PasswordKey select fields of a JSON secret. Both must be set
	// for the secret to be read as JSON.
	UsernameKey string
	PasswordKey string
}

// Present reports whether the reference names any credentials.
func (r Reference) Present() bool {
	return r.Value != ""
}

// JSONKeys reports whether the secret should be parsed as a JSON object.
func (r Reference) JSONKeys() bool {
	return r.UsernameKey != "" && r.PasswordKey != ""
}

// String never includes inline secrets.
func (r Reference) String() string {
	switch {
	case !r.Present():
		return "<none>"
	case r.Kind == KindInline:
		return "inline:<redacted>"
	default:
		return fmt.Sprintf("%s:%s", strings.ToLower(string(r.Kind)), r.Value)
	}
}

// NewReference classifies a plain string reference. An empty string yields the
// zero Reference.
func NewReference(s string) Reference {
	if s == "" {
		return Reference{}
	}
	return Reference{Value: s, Kind: Classify(s)}
}

// ParseReference converts a resource property value into a Reference. It accepts
// nil, a plain string, or an object with plainText, secretArn, usernameKey and
// passwordKey fields.
func ParseReference(v interface{}) (Reference, error) {
	switch typed := v.(type) {
	case nil:
		return Reference{}, nil
	case string:
		return NewReference(typed), nil
	case map[string]interface{}:
		return parseStructured(typed)
	case map[string]string:
		m := make(map[string]interface{}, len(typed))
		for k, val := range typed {
			m[k] = val
		}
		return parseStructured(m)
	default:
		return Reference{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidReference, v)
	}
}

func parseStructured(m map[string]interface{}) (Reference, error) {
	field := func(name string) (string, error) {
		raw, ok := m[name]
		if !ok || raw == nil {
			return "", nil
		}
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("%w: %s must be a string", ErrInvalidReference, name)
		}
		return strings.TrimSpace(s), nil
	}
	plain, err := field("plainText")
	if err != nil {
		return Reference{}, err
	}
	secret, err := field("secretArn")
	if err != nil {
		return Reference{}, err
	}
	userKey, err := field("usernameKey")
	if err != nil {
		return Reference{}, err
	}
	passKey, err := field("passwordKey")
	if err != nil {
		return Reference{}, err
	}
	switch {
	case plain != "" && secret != "":
		return Reference{}, fmt.Errorf("%w: plainText and secretArn are mutually exclusive", ErrInvalidReference)
	case (userKey == "") != (passKey == ""):
		return Reference{}, fmt.Errorf("%w: usernameKey and passwordKey must be set together", ErrInvalidReference)
	case plain != "":
		return Reference{Value: plain, Kind: KindInline}, nil
	case secret != "":
		kind := KindName
		if Classify(secret) == KindARN {
			kind = KindARN
		}
		return Reference{Value: secret, Kind: kind, UsernameKey: userKey, PasswordKey: passKey}, nil
	default:
		return Reference{}, nil
	}
}
