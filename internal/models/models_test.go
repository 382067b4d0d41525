package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestSession_Fields(t *testing.T) {
	typ := reflect.TypeOf(Session{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:36")
	assertGormTag(t, typ, "UserID", "not null")
	assertGormTag(t, typ, "UserID", "index")
	assertGormTag(t, typ, "Title", "not null")
	assertGormTag(t, typ, "Description", "type:text")
	assertGormTag(t, typ, "Status", "default:planned")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "CompletedAt", "index")
	assertGormTag(t, typ, "CreatedAt", "index")
	assertGormTag(t, typ, "DeletedAt", "index")
	assertGormTag(t, typ, "Blocks", "foreignKey:SessionID")

	assertFieldType(t, typ, "TemplateID", "*string")
	assertFieldType(t, typ, "ActualDuration", "*int")
	assertFieldType(t, typ, "Status", "models.SessionStatus")
	assertFieldType(t, typ, "StartedAt", "*time.Time")
	assertFieldType(t, typ, "CompletedAt", "*time.Time")
	assertFieldType(t, typ, "Metadata", "datatypes.JSONMap")
	assertFieldType(t, typ, "DeletedAt", "gorm.DeletedAt")
	assertFieldType(t, typ, "Blocks", "[]models.Block")
}

func TestBlock_Fields(t *testing.T) {
	typ := reflect.TypeOf(Block{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "SessionID", "not null")
	assertGormTag(t, typ, "SessionID", "uniqueIndex:idx_block_order")
	assertGormTag(t, typ, "SortOrder", "uniqueIndex:idx_block_order")
	assertGormTag(t, typ, "Type", "default:custom")
	assertGormTag(t, typ, "Status", "default:planned")
	assertGormTag(t, typ, "Notes", "type:text")

	assertFieldType(t, typ, "TemplateBlockID", "*string")
	assertFieldType(t, typ, "Type", "models.BlockType")
	assertFieldType(t, typ, "Status", "models.BlockStatus")
	assertFieldType(t, typ, "ActualDuration", "*int")
	assertFieldType(t, typ, "Settings", "datatypes.JSONMap")
	assertFieldType(t, typ, "DeletedAt", "gorm.DeletedAt")
}

func TestGoal_Fields(t *testing.T) {
	typ := reflect.TypeOf(Goal{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "UserID", "index")
	assertGormTag(t, typ, "Type", "not null")
	assertGormTag(t, typ, "Target", "not null")
	assertGormTag(t, typ, "Progress", "serializer:json")
	assertGormTag(t, typ, "IsActive", "default:true")
	assertGormTag(t, typ, "IsCompleted", "default:false")

	assertFieldType(t, typ, "Type", "models.GoalType")
	if f, _ := typ.FieldByName("Target"); f.Type != reflect.TypeOf(datatypes.JSONType[GoalTarget]{}) {
		t.Errorf("Goal.Target type = %s, want datatypes.JSONType[GoalTarget]", f.Type)
	}
	assertFieldType(t, typ, "Progress", "*models.GoalProgress")
	assertFieldType(t, typ, "EndDate", "*time.Time")
	assertFieldType(t, typ, "CompletedAt", "*time.Time")
}

func TestEvent_Fields(t *testing.T) {
	typ := reflect.TypeOf(Event{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "Kind", "not null")
	assertGormTag(t, typ, "Acknowledged", "index")
	assertGormTag(t, typ, "Dead", "index")
	assertGormTag(t, typ, "LastError", "type:text")

	assertFieldType(t, typ, "ID", "uint")
	assertFieldType(t, typ, "Kind", "models.EventKind")
	assertFieldType(t, typ, "CompletedAt", "time.Time")
}

func TestSessionStatus_Values(t *testing.T) {
	tests := map[SessionStatus]string{
		SessionPlanned:   "planned",
		SessionActive:    "active",
		SessionPaused:    "paused",
		SessionCompleted: "completed",
		SessionCancelled: "cancelled",
	}
	for got, want := range tests {
		if string(got) != want {
			t.Errorf("status = %q, want %q", got, want)
		}
	}
}

func TestBlockTypes_Complete(t *testing.T) {
	want := []string{"warmup", "technique", "repertoire", "improvisation", "sight_reading", "theory", "break", "custom"}
	if len(BlockTypes) != len(want) {
		t.Fatalf("got %d block types, want %d", len(BlockTypes), len(want))
	}
	for i, bt := range BlockTypes {
		if string(bt) != want[i] {
			t.Errorf("BlockTypes[%d] = %q, want %q", i, bt, want[i])
		}
	}
}

func TestSession_Instantiation(t *testing.T) {
	now := time.Now()
	minutes := 45
	s := Session{
		ID:             "s-1",
		UserID:         "ana",
		Title:          "Evening",
		Status:         SessionCompleted,
		ActualDuration: &minutes,
		CompletedAt:    &now,
		Blocks: []Block{
			{ID: "b-1", SessionID: "s-1", Title: "Long tones", Type: BlockWarmup, SortOrder: 0},
			{ID: "b-2", SessionID: "s-1", Title: "Etude", Type: BlockTechnique, SortOrder: 1},
		},
	}
	if len(s.Blocks) != 2 || s.Blocks[1].SortOrder != 1 {
		t.Errorf("blocks = %+v", s.Blocks)
	}
	if *s.ActualDuration != 45 {
		t.Errorf("ActualDuration = %d, want 45", *s.ActualDuration)
	}
}

func TestGoalTarget_JSON(t *testing.T) {
	data, err := json.Marshal(GoalTarget{Value: 30, ExerciseType: BlockTechnique})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"value":30,"exercise_type":"technique"}` {
		t.Errorf("target json = %s", data)
	}
	data, err = json.Marshal(GoalTarget{Value: 5})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"value":5}` {
		t.Errorf("target json without exercise type = %s", data)
	}
}
