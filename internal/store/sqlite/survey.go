package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/comigor/concierge-go/internal/survey"
)

func (s *Store) CreateSurvey(ctx context.Context, in survey.NewSurvey) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(in.CreatedAt)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO surveys (name, description, category, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		in.Name, in.Description, in.Category, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert survey: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, q := range in.Questions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO survey_questions (
				survey_id, question_type, question_text, description, font_size,
				options_json, is_required, display_order, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, string(q.Type), q.Text, q.Description, q.FontSize,
			q.OptionsJSON, q.Required, q.DisplayOrder, now, now); err != nil {
			return 0, fmt.Errorf("insert question: %w", err)
		}
	}
	return id, tx.Commit()
}

func (s *Store) GetSurvey(ctx context.Context, id int64) (survey.StoredSurvey, error) {
	out := survey.StoredSurvey{ID: id}
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT name, description FROM surveys WHERE id = ?`, id).
		Scan(&out.Name, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return survey.StoredSurvey{}, fmt.Errorf("survey %d: %w", id, survey.ErrNotFound)
	}
	if err != nil {
		return survey.StoredSurvey{}, fmt.Errorf("get survey %d: %w", id, err)
	}
	out.Description = nullString(desc)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question_type, question_text, description, font_size,
		       options_json, is_required, display_order
		  FROM survey_questions
		 WHERE survey_id = ?
		 ORDER BY display_order ASC, id ASC`, id)
	if err != nil {
		return survey.StoredSurvey{}, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q        survey.StoredQuestion
			qtype    string
			qdesc    sql.NullString
			fontSize sql.NullInt64
			options  sql.NullString
			required sql.NullBool
			order    sql.NullInt64
		)
		if err := rows.Scan(&q.ID, &qtype, &q.Text, &qdesc, &fontSize, &options, &required, &order); err != nil {
			return survey.StoredSurvey{}, fmt.Errorf("scan question: %w", err)
		}
		q.Type = survey.QuestionType(qtype)
		q.Description = nullString(qdesc)
		if fontSize.Valid {
			v := int(fontSize.Int64)
			q.FontSize = &v
		}
		q.OptionsJSON = options.String
		q.Required = required.Bool
		q.DisplayOrder = int(order.Int64)
		out.Questions = append(out.Questions, q)
	}
	return out, rows.Err()
}

func (s *Store) SurveyExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM surveys WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("survey exists %d: %w", id, err)
	}
	return true, nil
}

func (s *Store) UpsertMember(ctx context.Context, m survey.Member) (int64, error) {
	now := formatTime(m.SeenAt)
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO members (
			external_id, display_name, avatar_url, gender, birthday, email, phone,
			source, created_at, updated_at, last_interaction_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			gender = excluded.gender,
			birthday = excluded.birthday,
			email = excluded.email,
			phone = excluded.phone,
			source = excluded.source,
			updated_at = excluded.updated_at,
			last_interaction_at = excluded.last_interaction_at
		RETURNING id`,
		m.ExternalID, m.DisplayName, m.AvatarURL, m.Gender, m.Birthday, m.Email, m.Phone,
		m.Source, now, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert member %s: %w", m.ExternalID, err)
	}
	return id, nil
}

func (s *Store) InsertResponse(ctx context.Context, r survey.Response) (int64, error) {
	now := formatTime(r.CompletedAt)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO survey_responses (
			survey_id, member_id, external_id, answers_json, is_completed,
			completed_at, source, ip_address, user_agent, created_at, updated_at
		) VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?)`,
		r.SurveyID, r.MemberID, r.ExternalID, r.AnswersJSON,
		now, r.Source, r.IPAddress, r.UserAgent, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert response: %w", err)
	}
	return res.LastInsertId()
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
