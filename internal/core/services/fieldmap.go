package services

import (
	"fmt"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

const (
	toGeneric = "to-generic"
	toNative  = "to-native"
)

// FieldMapper translates items between one service's native shape and the
// generic shape, field by field, following the declared field list.
type FieldMapper struct {
	service string
	fields  []string
	rules   domain.FieldRules
}

// NewFieldMapper creates a mapper. An empty field list selects
// domain.DefaultFieldMap.
func NewFieldMapper(service string, fields []string, rules domain.FieldRules) *FieldMapper {
	if len(fields) == 0 {
		fields = domain.DefaultFieldMap
	}
	return &FieldMapper{
		service: service,
		fields:  append([]string(nil), fields...),
		rules:   rules,
	}
}

// Fields returns the declared field list.
func (m *FieldMapper) Fields() []string {
	return append([]string(nil), m.fields...)
}

// Validate checks that every declared field has a rule in both directions.
// It runs at start-up so a field added to the shared list without a
// matching rule fails before the first cycle.
func (m *FieldMapper) Validate() error {
	for _, field := range m.fields {
		rule, ok := m.rules[field]
		if !ok || rule.ToGeneric == nil {
			return &domain.MappingError{Service: m.service, Field: field, Direction: toGeneric}
		}
		if rule.ToNative == nil {
			return &domain.MappingError{Service: m.service, Field: field, Direction: toNative}
		}
	}
	return nil
}

// ToGeneric projects a native item. With partial unset, a declared field
// without a rule fails with *domain.MappingError; with partial set it is
// skipped.
func (m *FieldMapper) ToGeneric(item domain.NativeItem, partial bool) (domain.GenericItem, error) {
	out := domain.GenericItem{Complete: domain.Incomplete}
	if item == nil {
		return out, fmt.Errorf("%s: map nil item: %w", m.service, domain.ErrInvalidInput)
	}
	for _, field := range m.fields {
		rule, ok := m.rules[field]
		if !ok || rule.ToGeneric == nil {
			if partial {
				continue
			}
			return domain.GenericItem{}, &domain.MappingError{Service: m.service, Field: field, Direction: toGeneric}
		}
		rule.ToGeneric(item, &out)
	}
	return out, nil
}

// ToNative builds a native item, or a partial update payload when partial
// is set.
func (m *FieldMapper) ToNative(item domain.GenericItem, partial bool) (domain.NativeItem, error) {
	out := make(domain.NativeItem, len(m.fields))
	for _, field := range m.fields {
		rule, ok := m.rules[field]
		if !ok || rule.ToNative == nil {
			if partial {
				continue
			}
			return nil, &domain.MappingError{Service: m.service, Field: field, Direction: toNative}
		}
		rule.ToNative(item, out)
	}
	return out, nil
}
