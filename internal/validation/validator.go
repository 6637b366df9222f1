// Package validation turns raw scoring payloads into typed transaction records.
package validation

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/google/uuid"
)

// MaxTransactionIDLength bounds client-supplied idempotency keys.
const MaxTransactionIDLength = 128

// MaxAccountIDLength matches the width of the src_acc and dst_acc columns.
const MaxAccountIDLength = 255

// Options configures a Validator.
type Options struct {
	// AllowNegativeBalances accepts negative src/dst balance fields.
	AllowNegativeBalances bool

	// Vocabulary is the set of transaction kinds the model was fit on.
	// Defaults to domain.DefaultVocabulary when empty.
	Vocabulary []string
}

// Validator checks scoring payloads. It holds no mutable state and is safe
// for concurrent use.
type Validator struct {
	allowNegativeBalances bool
	vocabulary            map[string]struct{}
	newID                 func() string
}

// New creates a Validator from opts.
func New(opts Options) *Validator {
	vocab := opts.Vocabulary
	if len(vocab) == 0 {
		vocab = domain.DefaultVocabulary
	}

	v := &Validator{
		allowNegativeBalances: opts.AllowNegativeBalances,
		vocabulary:            make(map[string]struct{}, len(vocab)),
		newID:                 func() string { return uuid.New().String() },
	}
	for _, kind := range vocab {
		v.vocabulary[normalizeKind(kind)] = struct{}{}
	}

	return v
}

// balanceFields are checked against the negative-balance rule.
var balanceFields = []string{"src_bal", "src_new_bal", "dst_bal", "dst_new_bal"}

// Validate parses raw into a Submission. It never returns a partially
// populated submission: either every field is valid or a
// *domain.ValidationError names the first offending field.
func (v *Validator) Validate(raw []byte) (*domain.Submission, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	// Older clients nest the payload under "transaction".
	if nested, ok := fields["transaction"]; ok {
		inner, err := decodeObject(nested)
		if err != nil {
			return nil, domain.NewValidationError("transaction", "must be a JSON object")
		}
		if id, ok := fields["transaction_id"]; ok {
			if _, dup := inner["transaction_id"]; !dup {
				inner["transaction_id"] = id
			}
		}
		fields = inner
	}

	var rec domain.TransactionRecord

	if rec.TimeInd, err = requiredInt(fields, "time_ind"); err != nil {
		return nil, err
	}
	if rec.TimeInd < 0 {
		return nil, domain.NewValidationError("time_ind", "must be >= 0")
	}

	if rec.Amount, err = requiredFloat(fields, "amount"); err != nil {
		return nil, err
	}
	if rec.Amount < 0 {
		return nil, domain.NewValidationError("amount", "must be >= 0")
	}

	kind, err := requiredString(fields, "transac_type")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(kind) == "" {
		return nil, domain.NewValidationError("transac_type", "must not be empty")
	}
	rec.TransacType = v.NormalizeType(kind)

	balances := []*float64{&rec.SrcBal, &rec.SrcNewBal, &rec.DstBal, &rec.DstNewBal}
	for i, name := range balanceFields {
		val, err := requiredFloat(fields, name)
		if err != nil {
			return nil, err
		}
		if val < 0 && !v.allowNegativeBalances {
			return nil, domain.NewValidationError(name, "must be >= 0")
		}
		*balances[i] = val
	}

	if rec.SrcAcc, err = accountID(fields, "src_acc"); err != nil {
		return nil, err
	}
	if rec.DstAcc, err = accountID(fields, "dst_acc"); err != nil {
		return nil, err
	}

	sub := &domain.Submission{Transaction: rec}
	id, present, err := optionalString(fields, "transaction_id")
	if err != nil {
		return nil, err
	}
	switch {
	case !present:
		sub.TransactionID = v.newID()
		sub.Generated = true
	case strings.TrimSpace(id) == "":
		return nil, domain.NewValidationError("transaction_id", "must not be empty")
	case len(id) > MaxTransactionIDLength:
		return nil, domain.NewValidationError("transaction_id", "must be at most 128 characters")
	case strings.IndexByte(id, 0) >= 0:
		return nil, domain.NewValidationError("transaction_id", "must not contain NUL bytes")
	default:
		sub.TransactionID = id
	}

	return sub, nil
}

// NormalizeType maps a raw transaction kind into the closed encoding space.
// Unknown kinds land in domain.TransacOther.
func (v *Validator) NormalizeType(kind string) domain.TransacType {
	norm := normalizeKind(kind)
	if _, ok := v.vocabulary[norm]; ok {
		return domain.TransacType(norm)
	}
	return domain.TransacOther
}

// normalizeKind upper-cases and trims a kind for comparison.
func normalizeKind(kind string) string {
	return strings.ToUpper(strings.TrimSpace(kind))
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, domain.NewValidationError("body", "must be a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, domain.NewValidationError("body", "malformed JSON")
	}
	return fields, nil
}

// decodeValue decodes one field, keeping numbers as json.Number.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func lookup(fields map[string]json.RawMessage, name string) (any, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, domain.NewValidationError(name, "is required")
	}
	val, err := decodeValue(raw)
	if err != nil {
		return nil, domain.NewValidationError(name, "malformed value")
	}
	if val == nil {
		return nil, domain.NewValidationError(name, "is required")
	}
	return val, nil
}

func requiredFloat(fields map[string]json.RawMessage, name string) (float64, error) {
	val, err := lookup(fields, name)
	if err != nil {
		return 0, err
	}
	num, ok := val.(json.Number)
	if !ok {
		return 0, domain.NewValidationError(name, "must be a number")
	}
	f, err := strconv.ParseFloat(num.String(), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, domain.NewValidationError(name, "must be finite")
	}
	return f, nil
}

func requiredInt(fields map[string]json.RawMessage, name string) (int64, error) {
	val, err := lookup(fields, name)
	if err != nil {
		return 0, err
	}
	num, ok := val.(json.Number)
	if !ok {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	if i, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		return i, nil
	}

	// Accept integral values written as 10.0 or 1e3.
	f, err := strconv.ParseFloat(num.String(), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, domain.NewValidationError(name, "must be finite")
	}
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return int64(f), nil
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	val, err := lookup(fields, name)
	if err != nil {
		return "", err
	}
	s, ok := val.(string)
	if !ok {
		return "", domain.NewValidationError(name, "must be a string")
	}
	return s, nil
}

// accountID reads an account identifier that must fit its VARCHAR column.
func accountID(fields map[string]json.RawMessage, name string) (string, error) {
	s, err := requiredString(fields, name)
	if err != nil {
		return "", err
	}
	if utf8.RuneCountInString(s) > MaxAccountIDLength {
		return "", domain.NewValidationError(name, "must be at most 255 characters")
	}
	if strings.IndexByte(s, 0) >= 0 {
		return "", domain.NewValidationError(name, "must not contain NUL bytes")
	}
	return s, nil
}

func optionalString(fields map[string]json.RawMessage, name string) (string, bool, error) {
	raw, ok := fields[name]
	if !ok {
		return "", false, nil
	}
	val, err := decodeValue(raw)
	if err != nil {
		return "", false, domain.NewValidationError(name, "malformed value")
	}
	if val == nil {
		return "", false, nil
	}
	s, ok := val.(string)
	if !ok {
		return "", false, domain.NewValidationError(name, "must be a string")
	}
	return s, true, nil
}
