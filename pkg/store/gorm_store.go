package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"trendscribe/pkg/domain"
)

const migrateLockID int64 = 51820417

// GormStore implements Store using GORM + Postgres. Chat messages live in
// their own table keyed by conversation.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ProjectModel{}, &UserStatsModel{}, &ConversationModel{}, &ChatMessageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func (s *GormStore) CreateProject(ctx context.Context, p domain.Project) error {
	model, err := projectToModel(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// UpdateProject overwrites all mutable columns of an existing project.
func (s *GormStore) UpdateProject(ctx context.Context, p domain.Project) error {
	model, err := projectToModel(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&ProjectModel{}).
		Where("id = ?", p.ID).
		Select("*").
		Omit("id", "user_id", "created_at").
		Updates(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var model ProjectModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, ErrNotFound
		}
		return domain.Project{}, err
	}
	return projectFromModel(model)
}

func (s *GormStore) ListProjectsByUser(ctx context.Context, userID string, limit int) ([]domain.ProjectSummary, error) {
	var models []ProjectModel
	if err := s.db.WithContext(ctx).
		Select("id", "title", "project_type", "status", "location", "category", "created_at", "updated_at").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(listLimit(limit)).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ProjectSummary, 0, len(models))
	for _, m := range models {
		out = append(out, summaryFromModel(m))
	}
	return out, nil
}

func (s *GormStore) DeleteProject(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&ProjectModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CountProjectsByStatusBefore(ctx context.Context, status domain.ProjectStatus, before time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ProjectModel{}).
		Where("status = ? AND updated_at < ?", string(status), before.UTC()).
		Count(&n).Error
	return n, err
}

// IncrementUserStats upserts the stats row with in-database increments so
// concurrent runs never lose a count.
func (s *GormStore) IncrementUserStats(ctx context.Context, userID string, projectType domain.ProjectType, at time.Time) error {
	row := UserStatsModel{UserID: userID, TotalProjects: 1, LastActiveAt: at.UTC()}
	updates := map[string]any{
		"total_projects": gorm.Expr("user_stats.total_projects + 1"),
		"last_active_at": at.UTC(),
	}
	if col := statsColumn(projectType); col != "" {
		switch projectType {
		case domain.ProjectDraft:
			row.ContentDrafts = 1
		case domain.ProjectModify:
			row.ContentModifications = 1
		case domain.ProjectImagePrompt:
			row.ImagePrompts = 1
		}
		updates[col] = gorm.Expr(fmt.Sprintf("user_stats.%s + 1", col))
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&row).Error
}

func (s *GormStore) GetUserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	var model UserStatsModel
	if err := s.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.UserStats{UserID: userID}, nil
		}
		return domain.UserStats{}, err
	}
	return domain.UserStats{
		UserID:               model.UserID,
		TotalProjects:        model.TotalProjects,
		ContentDrafts:        model.ContentDrafts,
		ContentModifications: model.ContentModifications,
		ImagePrompts:         model.ImagePrompts,
		LastActiveAt:         model.LastActiveAt,
	}, nil
}

func (s *GormStore) CreateConversation(ctx context.Context, c domain.Conversation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := ConversationModel{
			ID:        c.ID,
			UserID:    c.UserID,
			Title:     c.Title,
			Model:     c.Model,
			CreatedAt: c.CreatedAt.UTC(),
			UpdatedAt: c.UpdatedAt.UTC(),
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if len(c.Messages) == 0 {
			return nil
		}
		rows := messageModels(c.ID, c.Messages)
		return tx.Create(&rows).Error
	})
}

func (s *GormStore) AppendMessages(ctx context.Context, id string, msgs []domain.ChatMessage, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ConversationModel{}).Where("id = ?", id).Update("updated_at", at.UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if len(msgs) == 0 {
			return nil
		}
		rows := messageModels(id, msgs)
		return tx.Create(&rows).Error
	})
}

func (s *GormStore) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	db := s.db.WithContext(ctx)
	var model ConversationModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Conversation{}, ErrNotFound
		}
		return domain.Conversation{}, err
	}
	var msgs []ChatMessageModel
	if err := db.Where("conversation_id = ?", id).Order("id ASC").Find(&msgs).Error; err != nil {
		return domain.Conversation{}, err
	}
	return conversationFromModels(model, msgs), nil
}

func (s *GormStore) ListConversationsByUser(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	var models []ConversationModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(listLimit(limit)).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ConversationSummary, 0, len(models))
	for _, m := range models {
		out = append(out, conversationFromModels(m, nil).Summary())
	}
	return out, nil
}

func (s *GormStore) DeleteConversation(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&ChatMessageModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&ConversationModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
