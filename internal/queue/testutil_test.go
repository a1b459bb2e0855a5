package queue

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/tomearr/tomearr/internal/migrations"
	"github.com/tomearr/tomearr/internal/pipeline"
)

var testLimits = pipeline.Limits{Search: 3, Download: 3, Conversion: 2, Import: 2}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(migrations.InitialSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(setupTestDB(t), testLimits)
}

func testItem(identity string) *pipeline.Item {
	return &pipeline.Item{
		Identity: identity,
		Title:    "Project Hail Mary",
		Author:   "Andy Weir",
		Narrator: "Ray Porter",
		Priority: 5,
	}
}
