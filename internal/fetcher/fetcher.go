package fetcher

import (
	"context"
	"fmt"
	"time"

	"redcapgrade/internal/grading"
	"redcapgrade/internal/redcap"
)

// Observer is told about every REDCap request the fetcher issues.
type Observer interface {
	ObserveRequest(content string, elapsed time.Duration, err error)
}

// Fetcher exports per-project data through a shared client. Metadata and
// project info are memoized per token, so grading a student costs one
// metadata export no matter how many facts are derived from it.
type Fetcher struct {
	client   *redcap.Client
	budget   *RequestBudget
	group    Group
	cache    *Cache
	observer Observer
}

func NewFetcher(client *redcap.Client, budget *RequestBudget) *Fetcher {
	if budget == nil {
		budget = NewRequestBudget(0, 0)
	}
	return &Fetcher{
		client: client,
		budget: budget,
		cache:  NewCache(),
	}
}

// SetObserver installs a request observer (metrics). Call before use.
func (f *Fetcher) SetObserver(o Observer) {
	f.observer = o
}

func (f *Fetcher) Metadata(ctx context.Context, token string) ([]redcap.Field, error) {
	v, err := f.memo(ctx, cacheKey{content: "metadata", token: token}, func(ctx context.Context, p *redcap.Project) (any, error) {
		return p.ExportMetadata(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]redcap.Field), nil
}

func (f *Fetcher) FieldNames(ctx context.Context, token string) ([]string, error) {
	fields, err := f.Metadata(ctx, token)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(fields))
	for _, fl := range fields {
		names = append(names, fl.FieldName)
	}
	return names, nil
}

func (f *Fetcher) ProjectInfo(ctx context.Context, token string) (redcap.ProjectInfo, error) {
	v, err := f.memo(ctx, cacheKey{content: "project", token: token}, func(ctx context.Context, p *redcap.Project) (any, error) {
		return p.ExportProjectInfo(ctx)
	})
	if err != nil {
		return redcap.ProjectInfo{}, err
	}
	return v.(redcap.ProjectInfo), nil
}

// RecordCount counts distinct record ids. The record-id field is the first
// field of the data dictionary; without one, exported rows are counted.
func (f *Fetcher) RecordCount(ctx context.Context, token string) (int, error) {
	fields, err := f.Metadata(ctx, token)
	if err != nil {
		return 0, err
	}
	var idField string
	var exportFields []string
	if len(fields) > 0 {
		idField = fields[0].FieldName
		exportFields = []string{idField}
	}

	v, err := f.memo(ctx, cacheKey{content: "record", token: token}, func(ctx context.Context, p *redcap.Project) (any, error) {
		return p.ExportRecords(ctx, exportFields...)
	})
	if err != nil {
		return 0, err
	}
	records := v.([]map[string]any)
	if idField == "" {
		return len(records), nil
	}

	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		ids[fmt.Sprint(r[idField])] = struct{}{}
	}
	return len(ids), nil
}

// MetadataCSV is not memoized; it is downloaded once per project.
func (f *Fetcher) MetadataCSV(ctx context.Context, token string) ([]byte, error) {
	if err := f.check(ctx); err != nil {
		return nil, err
	}
	if err := f.budget.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	start := time.Now()
	body, err := f.client.Project(token).ExportMetadataCSV(ctx)
	f.observe("metadata_csv", start, err)
	return body, err
}

// Source adapts one token to grading.Source.
func (f *Fetcher) Source(token string) grading.Source {
	return &tokenSource{f: f, token: token}
}

func (f *Fetcher) check(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("fetch: nil context")
	}
	if f == nil {
		return fmt.Errorf("fetch: nil Fetcher")
	}
	if f.client == nil {
		return fmt.Errorf("fetch: nil REDCap client (use NewFetcher)")
	}
	if f.cache == nil {
		return fmt.Errorf("fetch: nil cache (use NewFetcher)")
	}
	return nil
}

func (f *Fetcher) memo(ctx context.Context, key cacheKey, export func(context.Context, *redcap.Project) (any, error)) (any, error) {
	if err := f.check(ctx); err != nil {
		return nil, err
	}
	if key.token == "" {
		return nil, fmt.Errorf("fetch %s: empty token", key.content)
	}

	if val, ok := f.cache.Get(key); ok {
		return val, nil
	}

	val, err, _ := f.group.Do(key, func() (any, error) {
		if val, ok := f.cache.Get(key); ok {
			return val, nil
		}
		if err := f.budget.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		start := time.Now()
		v, err := export(ctx, f.client.Project(key.token))
		f.observe(key.content, start, err)
		if err != nil {
			return nil, err
		}
		f.cache.Set(key, v)
		return v, nil
	})
	return val, err
}

func (f *Fetcher) observe(content string, start time.Time, err error) {
	if f.observer != nil {
		f.observer.ObserveRequest(content, time.Since(start), err)
	}
}

type tokenSource struct {
	f     *Fetcher
	token string
}

func (s *tokenSource) Project(ctx context.Context) (grading.Project, error) {
	info, err := s.f.ProjectInfo(ctx, s.token)
	if err != nil {
		return grading.Project{}, err
	}
	return grading.Project{ID: int(info.ProjectID), Title: info.ProjectTitle}, nil
}

func (s *tokenSource) FieldNames(ctx context.Context) ([]string, error) {
	return s.f.FieldNames(ctx, s.token)
}

func (s *tokenSource) RecordCount(ctx context.Context) (int, error) {
	return s.f.RecordCount(ctx, s.token)
}
