package history

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/v0xg/pixellens/internal/errx"
	"github.com/v0xg/pixellens/internal/runner"
)

// Run is one recorded suite execution.
type Run struct {
	ID         string    `gorm:"primaryKey;size:36"`
	StartedAt  time.Time `gorm:"index"`
	ConfigPath string
	Success    bool
	Passed     int
	Total      int
	DurationMS int64
	Cases      []CaseRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// CaseRecord is one case of a recorded run.
type CaseRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index;size:36"`
	Name       string `gorm:"index"`
	StartURL   string
	Success    bool
	ErrorKind  string
	Error      string
	DurationMS int64
	Steps      []StepRecord `gorm:"foreignKey:CaseID;constraint:OnDelete:CASCADE"`
}

// StepRecord is one step verdict.
type StepRecord struct {
	ID         uint `gorm:"primaryKey"`
	CaseID     uint `gorm:"index"`
	Position   int
	Name       string
	Action     string
	Status     string
	Success    bool
	Expected   []string `gorm:"serializer:json"`
	Detected   []string `gorm:"serializer:json"`
	Failed     []string `gorm:"serializer:json"`
	Extra      []string `gorm:"serializer:json"`
	ErrorKind  string
	Error      string
	DurationMS int64
}

// SaveSuite records a finished run with all its cases and steps.
func (s *Store) SaveSuite(ctx context.Context, res runner.SuiteResult, configPath string) error {
	run := Run{
		ID:         res.RunID,
		StartedAt:  res.StartedAt,
		ConfigPath: configPath,
		Success:    res.Success,
		Passed:     res.Passed(),
		Total:      len(res.Cases),
		DurationMS: res.Duration.Milliseconds(),
	}
	for _, c := range res.Cases {
		cr := CaseRecord{
			Name:       c.Name,
			StartURL:   c.StartURL,
			Success:    c.Success,
			ErrorKind:  string(c.ErrorKind),
			Error:      c.Error,
			DurationMS: c.Duration.Milliseconds(),
		}
		for i, st := range c.Steps {
			cr.Steps = append(cr.Steps, StepRecord{
				Position:   i + 1,
				Name:       st.Name,
				Action:     st.Action,
				Status:     string(st.Status),
				Success:    st.Success,
				Expected:   st.Expected,
				Detected:   st.Detected,
				Failed:     st.Failed,
				Extra:      st.Extra,
				ErrorKind:  string(st.ErrorKind),
				Error:      st.Error,
				DurationMS: st.Duration.Milliseconds(),
			})
		}
		run.Cases = append(run.Cases, cr)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&run).Error
	})
	if err != nil {
		return errx.Wrap(errx.KindInternal, err, "save run history")
	}
	return nil
}

// Recent returns the latest runs, newest first, with their cases.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := s.db.WithContext(ctx).Preload("Cases", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, errx.Wrap(errx.KindInternal, err, "query run history")
	}
	return runs, nil
}

// CaseHistory returns the latest recorded results for one case, newest
// first, with their steps.
func (s *Store) CaseHistory(ctx context.Context, name string, limit int) ([]CaseRecord, error) {
	var out []CaseRecord
	q := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("name = ?", name).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, errx.Wrap(errx.KindInternal, err, "query case history")
	}
	return out, nil
}

// PassRate is the share of recorded runs of a case that passed.
func (s *Store) PassRate(ctx context.Context, name string) (passed, total int64, err error) {
	base := s.db.WithContext(ctx).Model(&CaseRecord{}).Where("name = ?", name)
	if err = base.Count(&total).Error; err != nil {
		return 0, 0, errx.Wrap(errx.KindInternal, err, "count case history")
	}
	if err = s.db.WithContext(ctx).Model(&CaseRecord{}).Where("name = ? AND success = ?", name, true).Count(&passed).Error; err != nil {
		return 0, 0, errx.Wrap(errx.KindInternal, err, "count case history")
	}
	return passed, total, nil
}
