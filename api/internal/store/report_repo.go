package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bodyscan-coach/api/internal/analysis"

	"github.com/google/uuid"
)

type Kind string

const (
	KindAnalysis   Kind = "analysis"
	KindReanalysis Kind = "reanalysis"
)

// fixed-width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000Z"

type Report struct {
	ID        string                  `json:"id"`
	Kind      Kind                    `json:"kind"`
	ParentID  string                  `json:"parent_id,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	ImageHash string                  `json:"image_hash,omitempty"`
	Engine    string                  `json:"engine"`
	Model     string                  `json:"model"`
	Goal      analysis.Goal           `json:"goal"`
	Tone      analysis.Tone           `json:"tone"`
	Result    analysis.AnalysisResult `json:"result"`
}

type ReportRepo struct{ DB *DB }

func NewReportRepo(db *DB) *ReportRepo { return &ReportRepo{DB: db} }

// Save stores a report and returns its id. ID and CreatedAt are filled when
// empty.
func (r *ReportRepo) Save(ctx context.Context, rep Report) (string, error) {
	if rep.ID == "" {
		rep.ID = uuid.New().String()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now()
	}
	js, err := json.Marshal(rep.Result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	q := r.DB.rebind(`
insert into reports(id, kind, parent_id, created_at, image_hash, engine, model, goal, tone, result_json)
values (?,?,?,?,?,?,?,?,?,?)`)
	_, err = r.DB.ExecContext(ctx, q,
		rep.ID, string(rep.Kind), nullIfEmpty(rep.ParentID), rep.CreatedAt.UTC().Format(timeLayout),
		nullIfEmpty(rep.ImageHash), rep.Engine, rep.Model, string(rep.Goal), string(rep.Tone), string(js))
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	return rep.ID, nil
}

// Get returns ErrNotFound for an unknown id.
func (r *ReportRepo) Get(ctx context.Context, id string) (Report, error) {
	q := r.DB.rebind(`
select id, kind, coalesce(parent_id,''), created_at, coalesce(image_hash,''),
       engine, model, goal, tone, result_json
from reports
where id = ?`)
	var (
		rep     Report
		kind    string
		ts      string
		goal    string
		tone    string
		resJSON string
	)
	err := r.DB.QueryRowContext(ctx, q, id).Scan(&rep.ID, &kind, &rep.ParentID, &ts, &rep.ImageHash,
		&rep.Engine, &rep.Model, &goal, &tone, &resJSON)
	if err != nil {
		return Report{}, err
	}
	rep.Kind, rep.Goal, rep.Tone = Kind(kind), analysis.Goal(goal), analysis.Tone(tone)
	if rep.CreatedAt, err = time.Parse(timeLayout, ts); err != nil {
		return Report{}, fmt.Errorf("report %s: created_at: %w", id, err)
	}
	if err := json.Unmarshal([]byte(resJSON), &rep.Result); err != nil {
		return Report{}, fmt.Errorf("report %s: result: %w", id, err)
	}
	return rep, nil
}

// LookupAnalysis returns the newest first-pass result for the same image and
// options. With maxAge > 0 older rows are ignored. A row whose JSON no
// longer decodes counts as a miss.
func (r *ReportRepo) LookupAnalysis(ctx context.Context, key analysis.CacheKey, maxAge time.Duration) (analysis.AnalysisResult, bool, error) {
	q := `
select result_json, created_at
from reports
where kind = ? and image_hash = ? and engine = ? and model = ? and goal = ? and tone = ?`
	args := []any{string(KindAnalysis), key.ImageHash, key.Engine, key.Model, string(key.Goal), string(key.Tone)}
	if maxAge > 0 {
		q += ` and created_at >= ?`
		args = append(args, time.Now().Add(-maxAge).UTC().Format(timeLayout))
	}
	q += `
order by created_at desc
limit 1`

	var js, ts string
	err := r.DB.QueryRowContext(ctx, r.DB.rebind(q), args...).Scan(&js, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return analysis.AnalysisResult{}, false, nil
	}
	if err != nil {
		return analysis.AnalysisResult{}, false, err
	}
	var res analysis.AnalysisResult
	if err := json.Unmarshal([]byte(js), &res); err != nil {
		return analysis.AnalysisResult{}, false, nil
	}
	return res, true, nil
}

// PurgeOlderThan deletes reports created before now-age.
func (r *ReportRepo) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).UTC().Format(timeLayout)
	res, err := r.DB.ExecContext(ctx, r.DB.rebind(`delete from reports where created_at < ?`), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
