package schema

import (
	"testing"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{Tables: []TableInfo{
		{
			Name: "orders",
			Columns: []ColumnInfo{
				{Name: "id", DataType: "integer", Nullable: false},
				{Name: "user_id", DataType: "integer", Nullable: false},
				{Name: "status", DataType: "text", Nullable: true},
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []ForeignKey{{Column: "user_id", RefTable: "users", RefColumn: "id"}},
		},
		{
			Name: "users",
			Columns: []ColumnInfo{
				{Name: "id", DataType: "integer", Nullable: false},
				{Name: "email", DataType: "text", Nullable: true},
			},
			PrimaryKey: []string{"id"},
		},
	}}
}

func TestRenderShape(t *testing.T) {
	got := sampleSnapshot().Render()
	want := "TABLE orders (\n" +
		"  id integer NOT NULL\n" +
		"  user_id integer NOT NULL\n" +
		"  status text\n" +
		"  PRIMARY KEY (id)\n" +
		"  FOREIGN KEY (user_id) REFERENCES users (id)\n" +
		")\n\n" +
		"TABLE users (\n" +
		"  id integer NOT NULL\n" +
		"  email text\n" +
		"  PRIMARY KEY (id)\n" +
		")"
	if got != want {
		t.Fatalf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderDeterministic(t *testing.T) {
	first := sampleSnapshot().Render()
	for i := 0; i < 5; i++ {
		if got := sampleSnapshot().Render(); got != first {
			t.Fatalf("Render() produced different bytes on run %d", i)
		}
	}
}

func TestTableNames(t *testing.T) {
	names := sampleSnapshot().TableNames()
	if len(names) != 2 || names[0] != "orders" || names[1] != "users" {
		t.Fatalf("TableNames() = %v", names)
	}
}
