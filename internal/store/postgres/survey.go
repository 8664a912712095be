package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/comigor/concierge-go/internal/survey"
)

func (s *Store) CreateSurvey(ctx context.Context, in survey.NewSurvey) (int64, error) {
	var id int64
	now := in.CreatedAt.UTC()
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO surveys (name, description, category, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, $4, $4) RETURNING id`,
			in.Name, in.Description, in.Category, now).Scan(&id); err != nil {
			return fmt.Errorf("insert survey: %w", err)
		}

		batch := &pgx.Batch{}
		for _, q := range in.Questions {
			batch.Queue(`
				INSERT INTO survey_questions (
					survey_id, question_type, question_text, description, font_size,
					options_json, is_required, display_order, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
				id, string(q.Type), q.Text, q.Description, q.FontSize,
				q.OptionsJSON, q.Required, q.DisplayOrder, now)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) GetSurvey(ctx context.Context, id int64) (survey.StoredSurvey, error) {
	out := survey.StoredSurvey{ID: id}
	err := s.db.QueryRow(ctx, `SELECT name, description FROM surveys WHERE id = $1`, id).
		Scan(&out.Name, &out.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return survey.StoredSurvey{}, fmt.Errorf("survey %d: %w", id, survey.ErrNotFound)
	}
	if err != nil {
		return survey.StoredSurvey{}, fmt.Errorf("get survey %d: %w", id, err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, question_type, question_text, description, font_size,
		       COALESCE(options_json, '[]'), COALESCE(is_required, FALSE), COALESCE(display_order, 0)
		  FROM survey_questions
		 WHERE survey_id = $1
		 ORDER BY display_order ASC, id ASC`, id)
	if err != nil {
		return survey.StoredSurvey{}, fmt.Errorf("list questions: %w", err)
	}
	out.Questions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (survey.StoredQuestion, error) {
		var (
			q     survey.StoredQuestion
			qtype string
		)
		err := row.Scan(&q.ID, &qtype, &q.Text, &q.Description, &q.FontSize, &q.OptionsJSON, &q.Required, &q.DisplayOrder)
		q.Type = survey.QuestionType(qtype)
		return q, err
	})
	if err != nil {
		return survey.StoredSurvey{}, fmt.Errorf("scan questions: %w", err)
	}
	return out, nil
}

func (s *Store) SurveyExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM surveys WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("survey exists %d: %w", id, err)
	}
	return exists, nil
}

func (s *Store) UpsertMember(ctx context.Context, m survey.Member) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO members (
			external_id, display_name, avatar_url, gender, birthday, email, phone,
			source, created_at, updated_at, last_interaction_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $9)
		ON CONFLICT (external_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			gender = EXCLUDED.gender,
			birthday = EXCLUDED.birthday,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at,
			last_interaction_at = EXCLUDED.last_interaction_at
		RETURNING id`,
		m.ExternalID, m.DisplayName, m.AvatarURL, m.Gender, m.Birthday, m.Email, m.Phone,
		m.Source, m.SeenAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert member %s: %w", m.ExternalID, err)
	}
	return id, nil
}

func (s *Store) InsertResponse(ctx context.Context, r survey.Response) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO survey_responses (
			survey_id, member_id, external_id, answers_json, is_completed,
			completed_at, source, ip_address, user_agent, created_at, updated_at
		) VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8, $5, $5) RETURNING id`,
		r.SurveyID, r.MemberID, r.ExternalID, r.AnswersJSON,
		r.CompletedAt.UTC(), r.Source, r.IPAddress, r.UserAgent).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert response: %w", err)
	}
	return id, nil
}
