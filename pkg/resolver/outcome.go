package resolver

import (
	"fmt"
)

// Kind tags an Outcome.
type Kind int

const (
	// KindUnresolved is the zero value: the record was not attempted yet.
	KindUnresolved Kind = iota
	KindFound
	KindNotFound
	KindBlocked
	KindTransientError
)

var kindNames = map[Kind]string{
	KindUnresolved:     "unresolved",
	KindFound:          "found",
	KindNotFound:       "not_found",
	KindBlocked:        "blocked",
	KindTransientError: "transient_error",
}

// Kinds lists every kind in declaration order.
var Kinds = []Kind{KindUnresolved, KindFound, KindNotFound, KindBlocked, KindTransientError}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	n, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown outcome kind %d", int(k))
	}
	return []byte(n), nil
}

// UnmarshalText decodes a kind name. An empty name is KindUnresolved.
func (k *Kind) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = KindUnresolved
		return nil
	}
	for kind, n := range kindNames {
		if n == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", string(b))
}

// Detail values with a fixed meaning.
const (
	DetailPrincipalLinkMissing = "principal link missing"
	DetailJudgeFieldMissing    = "judge field missing"
	DetailPrincipalNoJudge     = "judge field missing on principal page"
)

// Outcome is the result of resolving one record's judge.
type Outcome struct {
	Kind   Kind   `json:"kind" yaml:"kind"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Found is a resolved judge name.
func Found(name string) Outcome { return Outcome{Kind: KindFound, Name: name} }

// NotFound means the page loaded but carried no judge.
func NotFound(detail string) Outcome { return Outcome{Kind: KindNotFound, Detail: detail} }

// Blocked means the portal refused to serve the page.
func Blocked(reason string) Outcome { return Outcome{Kind: KindBlocked, Detail: reason} }

// TransientError means the page could not be loaded.
func TransientError(detail string) Outcome { return Outcome{Kind: KindTransientError, Detail: detail} }

// Resolved reports whether the record has been attempted.
func (o Outcome) Resolved() bool { return o.Kind != KindUnresolved }

// IsFound reports whether a judge was found.
func (o Outcome) IsFound() bool { return o.Kind == KindFound }

// Overridable reports whether a manual override may replace this outcome.
func (o Outcome) Overridable() bool {
	return o.Kind == KindNotFound || o.Kind == KindBlocked
}

// Display is the text shown to operators and printed in reports.
func (o Outcome) Display() string {
	switch o.Kind {
	case KindFound:
		return o.Name
	case KindNotFound:
		if o.Detail == DetailPrincipalLinkMissing {
			return "Link do processo principal não encontrado"
		}
		return "Juiz não encontrado"
	case KindBlocked:
		return "Bloqueado pelo portal (captcha)"
	case KindTransientError:
		return "Erro ou não encontrado"
	default:
		return "Pendente"
	}
}

func (o Outcome) String() string {
	switch {
	case o.Name != "":
		return fmt.Sprintf("%s(%s)", o.Kind, o.Name)
	case o.Detail != "":
		return fmt.Sprintf("%s(%s)", o.Kind, o.Detail)
	default:
		return o.Kind.String()
	}
}
