package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// ============================================================
// InstanceRepository Tests
// ============================================================

func TestInstanceRepositoryList(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectCount int
		expectError bool
	}{
		{
			name: "two instances",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"instance_id", "user_id", "port", "api_username", "api_password_enc", "created_at"}).
					AddRow("bot-1", "user-a", 8101, "freqtrader", "enc-1", now).
					AddRow("bot-2", "user-b", 8102, "freqtrader", "enc-2", now)
				mock.ExpectQuery(`SELECT .+ FROM bot_instances ORDER BY created_at`).
					WillReturnRows(rows)
			},
			expectCount: 2,
		},
		{
			name: "empty registry",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"instance_id", "user_id", "port", "api_username", "api_password_enc", "created_at"})
				mock.ExpectQuery(`SELECT .+ FROM bot_instances ORDER BY created_at`).
					WillReturnRows(rows)
			},
			expectCount: 0,
		},
		{
			name: "query error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM bot_instances ORDER BY created_at`).
					WillReturnError(errors.New("connection lost"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewInstanceRepository(db)
			instances, err := repo.List()

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(instances) != tt.expectCount {
				t.Errorf("expected %d instances, got %d", tt.expectCount, len(instances))
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestInstanceRepositoryGet(t *testing.T) {
	now := time.Now()

	t.Run("success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create mock: %v", err)
		}
		defer db.Close()

		rows := sqlmock.NewRows([]string{"instance_id", "user_id", "port", "api_username", "api_password_enc", "created_at"}).
			AddRow("bot-1", "user-a", 8101, "freqtrader", "enc-1", now)
		mock.ExpectQuery(`SELECT .+ FROM bot_instances WHERE instance_id = \$1`).
			WithArgs("bot-1").
			WillReturnRows(rows)

		repo := NewInstanceRepository(db)
		inst, err := repo.Get("bot-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if inst.InstanceID != "bot-1" || inst.Port != 8101 {
			t.Errorf("unexpected instance: %+v", inst)
		}
	})

	t.Run("not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create mock: %v", err)
		}
		defer db.Close()

		mock.ExpectQuery(`SELECT .+ FROM bot_instances WHERE instance_id = \$1`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		repo := NewInstanceRepository(db)
		_, err = repo.Get("missing")
		if !errors.Is(err, ErrInstanceNotFound) {
			t.Errorf("expected ErrInstanceNotFound, got %v", err)
		}
	})
}
