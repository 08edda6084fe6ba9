package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/treshel/botboard/internal/models"
)

// MemoryStorage is an in-memory Storage used for development and
// tests. It mirrors the Postgres semantics: atomic transcript-number
// allocation, stable numbers and creation times, append-only turns.
type MemoryStorage struct {
	mu          sync.RWMutex
	nextID      int64
	projects    map[int64]*models.Project
	transcripts map[int64]*models.Transcript
	turns       map[int64][]*models.Turn
	knowledge   map[int64]*models.KnowledgeBase
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		projects:    make(map[int64]*models.Project),
		transcripts: make(map[int64]*models.Transcript),
		turns:       make(map[int64][]*models.Turn),
		knowledge:   make(map[int64]*models.KnowledgeBase),
	}
}

func (s *MemoryStorage) nextSequence() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStorage) CreateProject(ctx context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project.ID = s.nextSequence()
	clone := *project
	s.projects[project.ID] = &clone
	return nil
}

func (s *MemoryStorage) GetProjectByVoiceflowID(ctx context.Context, voiceflowProjectID string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, project := range s.projects {
		if project.VoiceflowProjectID == voiceflowProjectID {
			clone := *project
			return &clone, nil
		}
	}
	return nil, ErrProjectNotFound
}

func (s *MemoryStorage) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, project := range s.projects {
		if project.Slug == slug {
			clone := *project
			return &clone, nil
		}
	}
	return nil, ErrProjectNotFound
}

func (s *MemoryStorage) findTranscript(projectID int64, voiceflowTranscriptID string) *models.Transcript {
	for _, transcript := range s.transcripts {
		if transcript.ProjectID == projectID && transcript.VoiceflowTranscriptID == voiceflowTranscriptID {
			return transcript
		}
	}
	return nil
}

func (s *MemoryStorage) GetTranscriptState(ctx context.Context, projectID int64, voiceflowTranscriptID string) (*TranscriptState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcript := s.findTranscript(projectID, voiceflowTranscriptID)
	if transcript == nil {
		return nil, nil
	}

	state := &TranscriptState{
		Transcript: *transcript,
		TurnIDs:    make(map[string]struct{}),
	}
	for _, turn := range s.turns[transcript.ID] {
		state.TurnIDs[turn.VoiceflowTurnID] = struct{}{}
	}
	return state, nil
}

func (s *MemoryStorage) SaveTranscript(ctx context.Context, params SaveTranscriptParams) (*models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, exists := s.projects[params.ProjectID]
	if !exists {
		return nil, ErrProjectNotFound
	}

	now := time.Now()
	transcript := s.findTranscript(params.ProjectID, params.VoiceflowTranscriptID)
	if transcript == nil {
		project.LastTranscriptNumber++
		createdAt := params.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		transcript = &models.Transcript{
			ID:                    s.nextSequence(),
			ProjectID:             params.ProjectID,
			VoiceflowTranscriptID: params.VoiceflowTranscriptID,
			TranscriptNumber:      project.LastTranscriptNumber,
			CreatedAt:             createdAt,
		}
		s.transcripts[transcript.ID] = transcript
	}

	transcript.Name = params.Name
	transcript.Image = params.Image
	transcript.ReportTags = append([]string(nil), params.ReportTags...)
	transcript.Metadata = params.Metadata
	transcript.MessageCount = params.Metrics.MessageCount
	transcript.IsComplete = params.Metrics.IsComplete
	transcript.FirstResponse = params.Metrics.FirstResponse
	transcript.LastResponse = params.Metrics.LastResponse
	transcript.Duration = params.Metrics.Duration
	if params.Classification != nil {
		transcript.Language = params.Classification.Language
		transcript.Topic = params.Classification.Topic
	}
	transcript.UpdatedAt = now

	existing := make(map[string]struct{}, len(s.turns[transcript.ID]))
	for _, turn := range s.turns[transcript.ID] {
		existing[turn.VoiceflowTurnID] = struct{}{}
	}
	for _, turn := range params.NewTurns {
		if _, dup := existing[turn.VoiceflowTurnID]; dup {
			continue
		}
		stored := turn
		stored.ID = s.nextSequence()
		stored.TranscriptID = transcript.ID
		s.turns[transcript.ID] = append(s.turns[transcript.ID], &stored)
		existing[turn.VoiceflowTurnID] = struct{}{}
	}

	clone := *transcript
	return &clone, nil
}

func (s *MemoryStorage) ListTranscripts(ctx context.Context, projectID int64) ([]*models.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var transcripts []*models.Transcript
	for _, transcript := range s.transcripts {
		if transcript.ProjectID == projectID && !transcript.IsArchived {
			clone := *transcript
			transcripts = append(transcripts, &clone)
		}
	}

	sort.Slice(transcripts, func(i, j int) bool {
		return transcripts[i].CreatedAt.After(transcripts[j].CreatedAt)
	})
	return transcripts, nil
}

func (s *MemoryStorage) findByNumber(projectID int64, transcriptNumber int) *models.Transcript {
	for _, transcript := range s.transcripts {
		if transcript.ProjectID == projectID && transcript.TranscriptNumber == transcriptNumber {
			return transcript
		}
	}
	return nil
}

func (s *MemoryStorage) GetTranscript(ctx context.Context, projectID int64, transcriptNumber int) (*models.Transcript, []*models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcript := s.findByNumber(projectID, transcriptNumber)
	if transcript == nil {
		return nil, nil, ErrTranscriptNotFound
	}

	turns := make([]*models.Turn, 0, len(s.turns[transcript.ID]))
	for _, turn := range s.turns[transcript.ID] {
		clone := *turn
		turns = append(turns, &clone)
	}
	sort.Slice(turns, func(i, j int) bool {
		if turns[i].StartTime.Equal(turns[j].StartTime) {
			return turns[i].Sequence < turns[j].Sequence
		}
		return turns[i].StartTime.Before(turns[j].StartTime)
	})

	clone := *transcript
	return &clone, turns, nil
}

func (s *MemoryStorage) SetBookmarked(ctx context.Context, projectID int64, transcriptNumber int, bookmarked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript := s.findByNumber(projectID, transcriptNumber)
	if transcript == nil {
		return ErrTranscriptNotFound
	}
	transcript.Bookmarked = bookmarked
	transcript.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) SetArchived(ctx context.Context, projectID int64, transcriptNumber int, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript := s.findByNumber(projectID, transcriptNumber)
	if transcript == nil {
		return ErrTranscriptNotFound
	}
	transcript.IsArchived = archived
	transcript.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) LanguageDistribution(ctx context.Context, projectID int64) ([]LanguageCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, transcript := range s.transcripts {
		if transcript.ProjectID == projectID && transcript.Language != "" {
			counts[transcript.Language]++
		}
	}

	result := make([]LanguageCount, 0, len(counts))
	for language, count := range counts {
		result = append(result, LanguageCount{Language: language, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count == result[j].Count {
			return result[i].Language < result[j].Language
		}
		return result[i].Count > result[j].Count
	})
	return result, nil
}

func (s *MemoryStorage) DailyMessageCounts(ctx context.Context, projectID int64, days int) ([]DailyMessageStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	type bucket struct {
		total int
		count int
	}
	buckets := make(map[string]*bucket)
	for _, transcript := range s.transcripts {
		if transcript.ProjectID != projectID || transcript.CreatedAt.Before(cutoff) {
			continue
		}
		day := transcript.CreatedAt.Format("2006-01-02")
		b, exists := buckets[day]
		if !exists {
			b = &bucket{}
			buckets[day] = b
		}
		b.total += transcript.MessageCount
		b.count++
	}

	dayKeys := make([]string, 0, len(buckets))
	for day := range buckets {
		dayKeys = append(dayKeys, day)
	}
	sort.Strings(dayKeys)

	stats := make([]DailyMessageStat, 0, len(dayKeys))
	for _, day := range dayKeys {
		b := buckets[day]
		stats = append(stats, DailyMessageStat{
			Date:               day,
			AverageCount:       float64(b.total) / float64(b.count),
			TotalConversations: b.count,
		})
	}
	return stats, nil
}

func (s *MemoryStorage) GetKnowledgeBase(ctx context.Context, projectID int64) (*models.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kb, exists := s.knowledge[projectID]
	if !exists {
		return &models.KnowledgeBase{ProjectID: projectID, Name: "FAQs", Entries: []models.KnowledgeEntry{}}, nil
	}

	clone := *kb
	clone.Entries = append([]models.KnowledgeEntry(nil), kb.Entries...)
	return &clone, nil
}

func (s *MemoryStorage) ReplaceKnowledgeBase(ctx context.Context, projectID int64, name string, entries []models.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(name) == "" {
		name = "FAQs"
	}

	stored := make([]models.KnowledgeEntry, len(entries))
	copy(stored, entries)
	for i := range stored {
		stored[i].ID = s.nextSequence()
	}

	s.knowledge[projectID] = &models.KnowledgeBase{
		ID:        s.nextSequence(),
		ProjectID: projectID,
		Name:      name,
		Entries:   stored,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
