// Package schema builds immutable snapshots of a database's table structure
// by reading catalog metadata, and renders them as deterministic text for
// prompt construction.
package schema

import (
	"context"
	"fmt"
	"strings"
)

type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

type TableInfo struct {
	Name        string       `json:"name"`
	Columns     []ColumnInfo `json:"columns"`
	PrimaryKey  []string     `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Snapshot describes every table visible to the current role, tables in
// lexical order and columns in declared order. It is never mutated after
// the introspector returns it.
type Snapshot struct {
	Tables []TableInfo `json:"tables"`
}

type Introspector interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// IntrospectionError marks a structural failure reading catalog metadata.
// It is never retried.
type IntrospectionError struct {
	Err error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("schema introspection failed: %v", e.Err)
}

func (e *IntrospectionError) Unwrap() error {
	return e.Err
}

func (s *Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		names = append(names, table.Name)
	}
	return names
}

// Render produces the text form handed to the language model. Identical
// snapshots always render to identical bytes.
func (s *Snapshot) Render() string {
	var builder strings.Builder
	for i, table := range s.Tables {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(RenderTable(table))
	}
	return builder.String()
}

// RenderTable renders one table block in the same shape Render uses.
func RenderTable(table TableInfo) string {
	var builder strings.Builder
	builder.WriteString("TABLE ")
	builder.WriteString(table.Name)
	builder.WriteString(" (\n")
	for _, column := range table.Columns {
		builder.WriteString("  ")
		builder.WriteString(column.Name)
		builder.WriteString(" ")
		builder.WriteString(column.DataType)
		if !column.Nullable {
			builder.WriteString(" NOT NULL")
		}
		builder.WriteString("\n")
	}
	if len(table.PrimaryKey) > 0 {
		builder.WriteString("  PRIMARY KEY (")
		builder.WriteString(strings.Join(table.PrimaryKey, ", "))
		builder.WriteString(")\n")
	}
	for _, fk := range table.ForeignKeys {
		builder.WriteString(fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s (%s)\n", fk.Column, fk.RefTable, fk.RefColumn))
	}
	builder.WriteString(")")
	return builder.String()
}
