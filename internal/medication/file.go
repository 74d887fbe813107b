package medication

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/medremind/internal/model"
)

// DoseStatus records what happened to a dose slot.
type DoseStatus string

const (
	DoseTaken   DoseStatus = "taken"
	DoseSkipped DoseStatus = "skipped"
)

// Document is the YAML layout read by FileProvider.
type Document struct {
	Medications []MedicationEntry `yaml:"medications"`
	Doses       []DoseEntry       `yaml:"doses,omitempty"`
	Checkin     CheckinState      `yaml:"checkin,omitempty"`
}

// MedicationEntry is one medication with its schedules and setting overrides.
type MedicationEntry struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Dosage    string            `yaml:"dosage,omitempty"`
	Archived  bool              `yaml:"archived,omitempty"`
	Schedules []ScheduleEntry   `yaml:"schedules"`
	Settings  *SettingsOverride `yaml:"settings,omitempty"`
}

// ScheduleEntry is a daily clock time. Enabled defaults to true.
type ScheduleEntry struct {
	ID      string `yaml:"id"`
	Time    string `yaml:"time"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// SettingsOverride holds per-medication settings; nil fields use defaults.
type SettingsOverride struct {
	TimeSensitive  *bool  `yaml:"time_sensitive,omitempty"`
	CriticalAlerts *bool  `yaml:"critical_alerts,omitempty"`
	FollowUpDelay  *Delay `yaml:"follow_up_delay,omitempty"`
}

// DoseEntry is a logged or skipped dose.
type DoseEntry struct {
	Medication string     `yaml:"medication"`
	Schedule   string     `yaml:"schedule"`
	Date       model.Date `yaml:"date"`
	Status     DoseStatus `yaml:"status"`
}

// CheckinState is the episode and status data for daily check-ins.
type CheckinState struct {
	ActiveEpisode bool         `yaml:"active_episode,omitempty"`
	Episodes      []model.Date `yaml:"episodes,omitempty"`
	Statuses      []model.Date `yaml:"statuses,omitempty"`
}

// FileProvider serves medication data from a Document, optionally backed by
// a YAML file that mutations are written back to.
//
// Thread-safety: all methods are safe for concurrent use.
type FileProvider struct {
	mu       sync.RWMutex
	path     string
	doc      Document
	defaults model.Settings
}

var (
	_ Provider      = (*FileProvider)(nil)
	_ CheckinSource = (*FileProvider)(nil)
)

// NewProvider serves doc from memory. Save is a no-op.
func NewProvider(doc Document, defaults model.Settings) (*FileProvider, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &FileProvider{doc: doc, defaults: defaults}, nil
}

// LoadFile reads the YAML document at path. A missing file yields an empty
// provider that creates the file on first Save.
func LoadFile(path string, defaults model.Settings) (*FileProvider, error) {
	p := &FileProvider{path: path, defaults: defaults}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read medications %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &p.doc); err != nil {
		return nil, fmt.Errorf("parse medications %s: %w", path, err)
	}
	if err := p.doc.Validate(); err != nil {
		return nil, fmt.Errorf("medications %s: %w", path, err)
	}
	return p, nil
}

// Validate checks ids are unique and times parse.
func (d Document) Validate() error {
	meds := make(map[string]bool)
	scheds := make(map[string]bool)
	for _, m := range d.Medications {
		if m.ID == "" {
			return fmt.Errorf("medication %q has no id", m.Name)
		}
		if meds[m.ID] {
			return fmt.Errorf("duplicate medication id %q", m.ID)
		}
		meds[m.ID] = true
		for _, s := range m.Schedules {
			if s.ID == "" {
				return fmt.Errorf("medication %s: schedule has no id", m.ID)
			}
			if scheds[s.ID] {
				return fmt.Errorf("duplicate schedule id %q", s.ID)
			}
			scheds[s.ID] = true
			if _, _, err := model.ParseClock(s.Time); err != nil {
				return fmt.Errorf("medication %s schedule %s: %w", m.ID, s.ID, err)
			}
		}
	}
	for _, dose := range d.Doses {
		if _, err := model.ParseDate(string(dose.Date)); err != nil {
			return fmt.Errorf("dose %s/%s: %w", dose.Medication, dose.Schedule, err)
		}
	}
	return nil
}

// ActiveMedications implements Provider.
func (p *FileProvider) ActiveMedications(ctx context.Context) ([]model.Medication, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []model.Medication
	for _, m := range p.doc.Medications {
		if m.Archived {
			continue
		}
		out = append(out, m.toModel())
	}
	return out, nil
}

// Medication implements Provider.
func (p *FileProvider) Medication(ctx context.Context, id string) (*model.Medication, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry := p.findLocked(id)
	if entry == nil {
		return nil, nil
	}
	m := entry.toModel()
	return &m, nil
}

// Schedules implements Provider.
func (p *FileProvider) Schedules(ctx context.Context, medicationID string) ([]model.Schedule, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry := p.findLocked(medicationID)
	if entry == nil {
		return nil, nil
	}
	out := make([]model.Schedule, 0, len(entry.Schedules))
	for _, s := range entry.Schedules {
		out = append(out, model.Schedule{
			ID:           s.ID,
			MedicationID: medicationID,
			Time:         s.Time,
			Enabled:      s.Enabled == nil || *s.Enabled,
		})
	}
	return out, nil
}

// EffectiveSettings implements Provider.
func (p *FileProvider) EffectiveSettings(ctx context.Context, medicationID string) (model.Settings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	settings := p.defaults
	entry := p.findLocked(medicationID)
	if entry == nil || entry.Settings == nil {
		return settings, nil
	}
	if o := entry.Settings; o.TimeSensitive != nil {
		settings.TimeSensitive = *o.TimeSensitive
	}
	if o := entry.Settings; o.CriticalAlerts != nil {
		settings.CriticalAlerts = *o.CriticalAlerts
	}
	if o := entry.Settings; o.FollowUpDelay != nil {
		settings.FollowUpDelay = time.Duration(*o.FollowUpDelay)
	}
	return settings, nil
}

// DoseRecorded implements Provider.
func (p *FileProvider) DoseRecorded(ctx context.Context, medicationID, scheduleID string, date model.Date) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, d := range p.doc.Doses {
		if d.Medication == medicationID && d.Schedule == scheduleID && d.Date == date {
			return true, nil
		}
	}
	return false, nil
}

// ActiveEpisode implements CheckinSource.
func (p *FileProvider) ActiveEpisode(ctx context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc.Checkin.ActiveEpisode, nil
}

// EpisodeOn implements CheckinSource.
func (p *FileProvider) EpisodeOn(ctx context.Context, date model.Date) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return containsDate(p.doc.Checkin.Episodes, date), nil
}

// StatusLogged implements CheckinSource.
func (p *FileProvider) StatusLogged(ctx context.Context, date model.Date) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return containsDate(p.doc.Checkin.Statuses, date), nil
}

// RecordDose logs or skips a dose slot. Recording the same slot twice
// overwrites the status.
func (p *FileProvider) RecordDose(medicationID, scheduleID string, date model.Date, status DoseStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.findLocked(medicationID) == nil {
		return fmt.Errorf("record dose: unknown medication %q", medicationID)
	}
	for i, d := range p.doc.Doses {
		if d.Medication == medicationID && d.Schedule == scheduleID && d.Date == date {
			p.doc.Doses[i].Status = status
			return nil
		}
	}
	p.doc.Doses = append(p.doc.Doses, DoseEntry{
		Medication: medicationID,
		Schedule:   scheduleID,
		Date:       date,
		Status:     status,
	})
	return nil
}

// SetStatusLogged logs or clears the check-in status for date.
func (p *FileProvider) SetStatusLogged(date model.Date, logged bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc.Checkin.Statuses = setDate(p.doc.Checkin.Statuses, date, logged)
}

// SetEpisode records or clears an episode on date.
func (p *FileProvider) SetEpisode(date model.Date, present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc.Checkin.Episodes = setDate(p.doc.Checkin.Episodes, date, present)
}

// SetActiveEpisode marks whether an episode is in progress.
func (p *FileProvider) SetActiveEpisode(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc.Checkin.ActiveEpisode = active
}

// Upsert adds a medication or replaces the one with the same id.
func (p *FileProvider) Upsert(entry MedicationEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := Document{Medications: append([]MedicationEntry(nil), p.doc.Medications...)}
	if i := p.indexLocked(entry.ID); i >= 0 {
		next.Medications[i] = entry
	} else {
		next.Medications = append(next.Medications, entry)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("upsert medication %s: %w", entry.ID, err)
	}
	p.doc.Medications = next.Medications
	return nil
}

// Remove deletes a medication and all its schedules. Returns false if absent.
func (p *FileProvider) Remove(medicationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexLocked(medicationID)
	if i < 0 {
		return false
	}
	p.doc.Medications = append(p.doc.Medications[:i], p.doc.Medications[i+1:]...)
	return true
}

// Reload re-reads the backing file, replacing the in-memory document.
// A provider without a file, or whose file is gone, keeps its document.
func (p *FileProvider) Reload() error {
	if p.path == "" {
		return nil
	}
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read medications %s: %w", p.path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse medications %s: %w", p.path, err)
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("medications %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	return nil
}

// Save writes the document back to its file. It is a no-op for providers
// created with NewProvider.
func (p *FileProvider) Save() error {
	if p.path == "" {
		return nil
	}

	p.mu.RLock()
	data, err := yaml.Marshal(p.doc)
	p.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode medications: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("write medications %s: %w", p.path, err)
	}
	return nil
}

func (p *FileProvider) findLocked(id string) *MedicationEntry {
	if i := p.indexLocked(id); i >= 0 {
		return &p.doc.Medications[i]
	}
	return nil
}

func (p *FileProvider) indexLocked(id string) int {
	for i, m := range p.doc.Medications {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (m MedicationEntry) toModel() model.Medication {
	return model.Medication{ID: m.ID, Name: m.Name, Dosage: m.Dosage, Archived: m.Archived}
}

func containsDate(dates []model.Date, d model.Date) bool {
	for _, x := range dates {
		if x == d {
			return true
		}
	}
	return false
}

func setDate(dates []model.Date, d model.Date, present bool) []model.Date {
	if present {
		if containsDate(dates, d) {
			return dates
		}
		return append(dates, d)
	}
	out := dates[:0]
	for _, x := range dates {
		if x != d {
			out = append(out, x)
		}
	}
	return out
}
