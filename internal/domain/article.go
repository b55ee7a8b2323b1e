package domain

import (
	"database/sql"
	"time"
)

// Admission status constants
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Stage is the authoritative resume point of an article run
type Stage string

// Stage constants, in run order followed by the failure terminals
const (
	StageInit          Stage = "initiated"
	StagePreWriting    Stage = "pre_writing"
	StagePreWritingEnd Stage = "pre_writing_end"
	StageGeneratingEnd Stage = "generating_end"
	StageDone          Stage = "completed"
	StageFailDB        Stage = "fail_db"
	StageFailFile      Stage = "fail_file"
	StageFailListen    Stage = "fail_listen"
)

// Resumable reports whether a runner may advance an article from this stage
func (s Stage) Resumable() bool {
	switch s {
	case StageInit, StagePreWriting, StagePreWritingEnd, StageGeneratingEnd:
		return true
	}
	return false
}

// Failed reports whether s is one of the FAIL_* terminals
func (s Stage) Failed() bool {
	switch s {
	case StageFailDB, StageFailFile, StageFailListen:
		return true
	}
	return false
}

// Terminal reports whether no runner will ever move s again
func (s Stage) Terminal() bool {
	return s == StageDone || s.Failed()
}

// Next returns the stage that follows s on the success path
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageInit:
		return StagePreWriting, true
	case StagePreWriting:
		return StagePreWritingEnd, true
	case StagePreWritingEnd:
		return StageGeneratingEnd, true
	case StageGeneratingEnd:
		return StageDone, true
	}
	return "", false
}

var stageInfo = map[Stage]string{
	StageInit:          "Start set up llm provider. (Step 1 / 4)",
	StagePreWriting:    "Start research and generate_outline. (Step 2 / 4)",
	StagePreWritingEnd: "Start generate_article and polish_article. (Step 3 / 4)",
	StageGeneratingEnd: "Start update database (Step 4 / 4)",
	StageDone:          "",
	StageFailDB:        "Failed to save the article to the database.",
	StageFailFile:      "Failed to read the generated article files.",
	StageFailListen:    "The generation pipeline failed.",
}

// InfoMessage returns the human readable description of a stage
func (s Stage) InfoMessage() string {
	return stageInfo[s]
}

// Article is the durable job record of one generation run
type Article struct {
	ID             string         `db:"id"`
	OwnerID        string         `db:"owner_id"`
	Topic          string         `db:"topic"`
	Status         string         `db:"status"`
	Stage          Stage          `db:"stage"`
	ProgressState  sql.NullString `db:"progress_state"`
	StatusText     sql.NullString `db:"status_text"`
	Content        sql.NullString `db:"content"`
	ContentSummary sql.NullString `db:"content_summary"`
	URLToInfo      sql.NullString `db:"url_to_info"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// Active reports whether the article is visible to read operations
func (a *Article) Active() bool {
	return a.Status == StatusActive
}

// Output is what a finished run writes onto the article
type Output struct {
	Content        string
	ContentSummary string
	URLToInfo      string
}
