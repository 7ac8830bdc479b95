package object

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/roach88/telos/internal/errs"
)

// separator divides the kind tag from the canonical body.
const separator = 0x00

// Encode returns the canonical byte encoding of obj:
//
//	kind + 0x00 + canonical JSON body
//
// The kind is part of the hashed bytes, so two variants with coincidentally
// equal bodies never share an ID.
func Encode(obj Object) ([]byte, error) {
	if obj == nil {
		return nil, errs.New(errs.ErrInvalidObject, "object.encode", "", "nil object")
	}
	body, err := MarshalCanonical(obj.normalize())
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidObject, "object.encode", string(obj.Kind()), err)
	}

	out := make([]byte, 0, len(obj.Kind())+1+len(body))
	out = append(out, obj.Kind()...)
	out = append(out, separator)
	return append(out, body...), nil
}

// Identify computes the ID of encoded bytes.
func Identify(encoded []byte) ID {
	sum := sha256.Sum256(encoded)
	return ID(hex.EncodeToString(sum[:]))
}

// IDOf encodes obj and returns its ID.
func IDOf(obj Object) (ID, error) {
	b, err := Encode(obj)
	if err != nil {
		return "", err
	}
	return Identify(b), nil
}

// Decode parses encoded bytes back into the variant named by the kind tag.
func Decode(encoded []byte) (Object, error) {
	i := bytes.IndexByte(encoded, separator)
	if i < 0 {
		return nil, errs.New(errs.ErrInvalidObject, "object.decode", "", "missing kind separator")
	}
	tag, body := string(encoded[:i]), encoded[i+1:]

	kind, ok := ParseKind(tag)
	if !ok {
		return nil, errs.New(errs.ErrInvalidObject, "object.decode", tag, "unknown kind")
	}

	switch kind {
	case KindIntent:
		return decodeAs[Intent](kind, body)
	case KindConstraint:
		return decodeAs[Constraint](kind, body)
	case KindDecisionRecord:
		return decodeAs[DecisionRecord](kind, body)
	case KindCodeBinding:
		return decodeAs[CodeBinding](kind, body)
	case KindAgentOperation:
		return decodeAs[AgentOperation](kind, body)
	case KindChangeSet:
		return decodeAs[ChangeSet](kind, body)
	case KindBehaviorDiff:
		return decodeAs[BehaviorDiff](kind, body)
	case KindStreamSnapshot:
		return decodeAs[StreamSnapshot](kind, body)
	default:
		return nil, fmt.Errorf("object.decode: unhandled kind %q", kind)
	}
}

func decodeAs[T Object](kind Kind, body []byte) (Object, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, errs.Wrap(errs.ErrInvalidObject, "object.decode", string(kind), err)
	}
	return v, nil
}
