package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	dom "github.com/muhamad-mamoun/full-stack-todo-list-app/internal/domain"
	"github.com/muhamad-mamoun/full-stack-todo-list-app/internal/repo"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"
)

const (
	maxTitleLen       = 255
	maxDescriptionLen = 1000
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEmptyTitle         = errors.New("title is required and cannot be empty")
	ErrTitleTooLong       = errors.New("title cannot exceed 255 characters")
	ErrDescriptionTooLong = errors.New("description cannot exceed 1000 characters")
	ErrInvalidPriority    = errors.New("priority must be low, medium, or high")
	ErrNoFieldsToUpdate   = errors.New("no fields to update")
)

// TaskUpdate is a partial update at the service boundary; nil fields are
// left unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *string
	Completed   *bool
}

// ListCache caches per-user task lists. *cache.TaskCache is the Redis
// implementation.
type ListCache interface {
	GetList(ctx context.Context, userID int64) ([]dom.Task, error)
	SetList(ctx context.Context, userID int64, list []dom.Task) error
	Invalidate(ctx context.Context, userID int64) error
}

// TaskService owns validation and caching for task CRUD. Every method takes
// the authenticated user id; there is no way to act on another user's rows.
type TaskService struct {
	repo  repo.TaskRepo
	cache ListCache
	sf    singleflight.Group
}

// NewTaskService creates a TaskService. If c is nil, caching is disabled.
func NewTaskService(r repo.TaskRepo, c ListCache) *TaskService {
	return &TaskService{repo: r, cache: c}
}

func (s *TaskService) Create(ctx context.Context, userID int64, title, desc, priority string) (dom.Task, error) {
	title = strings.TrimSpace(title)
	desc = strings.TrimSpace(desc)

	if title == "" {
		return dom.Task{}, ErrEmptyTitle
	}
	// Length bounds count runes, matching the gin max= binding rule.
	if utf8.RuneCountInString(title) > maxTitleLen {
		return dom.Task{}, ErrTitleTooLong
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return dom.Task{}, ErrDescriptionTooLong
	}
	prio := dom.PriorityMedium
	if priority != "" {
		prio = dom.Priority(priority)
		if !prio.Valid() {
			return dom.Task{}, ErrInvalidPriority
		}
	}

	t, err := s.repo.Create(ctx, dom.Task{
		UserID:      userID,
		Title:       title,
		Description: desc,
		Priority:    prio,
	})
	if err != nil {
		return dom.Task{}, err
	}
	s.invalidateCache(ctx, userID)
	return t, nil
}

func (s *TaskService) List(ctx context.Context, userID int64) ([]dom.Task, error) {
	if s.cache != nil {
		key := "list:" + strconv.FormatInt(userID, 10)
		v, err, _ := s.sf.Do(key, func() (interface{}, error) {
			if list, err := s.cache.GetList(ctx, userID); err == nil && list != nil {
				return list, nil
			}
			list, err := s.repo.List(ctx, userID)
			if err != nil {
				return nil, err
			}
			_ = s.cache.SetList(ctx, userID, list)
			return list, nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]dom.Task), nil
	}
	return s.repo.List(ctx, userID)
}

func (s *TaskService) GetByID(ctx context.Context, userID, id int64) (dom.Task, error) {
	t, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	return t, nil
}

// Update validates each supplied field the same way Create does and applies
// them in one conditional statement in the repo. At least one field must be
// supplied.
func (s *TaskService) Update(ctx context.Context, userID, id int64, upd TaskUpdate) (dom.Task, error) {
	if upd.Title == nil && upd.Description == nil && upd.Priority == nil && upd.Completed == nil {
		return dom.Task{}, ErrNoFieldsToUpdate
	}

	var patch repo.TaskPatch
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return dom.Task{}, ErrEmptyTitle
		}
		if utf8.RuneCountInString(title) > maxTitleLen {
			return dom.Task{}, ErrTitleTooLong
		}
		patch.Title = &title
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		if utf8.RuneCountInString(desc) > maxDescriptionLen {
			return dom.Task{}, ErrDescriptionTooLong
		}
		patch.Description = &desc
	}
	if upd.Priority != nil {
		prio := dom.Priority(*upd.Priority)
		if !prio.Valid() {
			return dom.Task{}, ErrInvalidPriority
		}
		patch.Priority = &prio
	}
	patch.Completed = upd.Completed

	t, err := s.repo.Update(ctx, userID, id, patch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	s.invalidateCache(ctx, userID)
	return t, nil
}

func (s *TaskService) Toggle(ctx context.Context, userID, id int64) (dom.Task, error) {
	t, err := s.repo.ToggleCompleted(ctx, userID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dom.Task{}, ErrNotFound
		}
		return dom.Task{}, err
	}
	s.invalidateCache(ctx, userID)
	return t, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, id int64) error {
	err := s.repo.SoftDelete(ctx, userID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	s.invalidateCache(ctx, userID)
	return nil
}

func (s *TaskService) invalidateCache(ctx context.Context, userID int64) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, userID)
	}
}
