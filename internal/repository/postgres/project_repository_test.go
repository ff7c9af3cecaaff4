package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

func newMockRepos(t *testing.T) (*repository.Repositories, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewRepositories(sqlxDB, observability.NewNoopLogger(), observability.NewNoopMetrics()), mock
}

func projectColumns() []string {
	return []string{"id", "user_id", "name", "description", "created_at", "updated_at"}
}

func TestProjectRepositoryCreate(t *testing.T) {
	t.Run("inserts with the bound user", func(t *testing.T) {
		repos, mock := newMockRepos(t)
		repo := repos.Projects.WithUser("alice")

		mock.ExpectExec("INSERT INTO projects").
			WithArgs(sqlmock.AnyArg(), "alice", "demo", "a demo", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		project := &models.Project{Name: "demo", Description: "a demo"}
		require.NoError(t, repo.Create(context.Background(), project))
		assert.NotEqual(t, uuid.Nil, project.ID)
		assert.Equal(t, "alice", project.UserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to ErrAlreadyExists", func(t *testing.T) {
		repos, mock := newMockRepos(t)
		repo := repos.Projects.WithUser("alice")

		mock.ExpectExec("INSERT INTO projects").
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(context.Background(), &models.Project{Name: "demo"})
		assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	})

	t.Run("unbound repository refuses", func(t *testing.T) {
		repos, _ := newMockRepos(t)

		err := repos.Projects.Create(context.Background(), &models.Project{Name: "demo"})
		assert.ErrorIs(t, err, repository.ErrUnbound)
	})
}

func TestProjectRepositoryGet(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()

	t.Run("scopes the query to the user", func(t *testing.T) {
		repos, mock := newMockRepos(t)
		repo := repos.Projects.WithUser("alice")

		mock.ExpectQuery("SELECT (.+) FROM projects WHERE id").
			WithArgs(id, "alice").
			WillReturnRows(sqlmock.NewRows(projectColumns()).
				AddRow(id, "alice", "demo", "a demo", now, now))

		project, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "demo", project.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows maps to ErrNotFound", func(t *testing.T) {
		repos, mock := newMockRepos(t)
		repo := repos.Projects.WithUser("alice")

		mock.ExpectQuery("SELECT (.+) FROM projects WHERE id").
			WithArgs(id, "alice").
			WillReturnRows(sqlmock.NewRows(projectColumns()))

		_, err := repo.Get(context.Background(), id)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestProjectRepositoryGetByName(t *testing.T) {
	repos, mock := newMockRepos(t)
	repo := repos.Projects.WithUser("alice")
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM projects WHERE name").
		WithArgs("demo", "alice").
		WillReturnRows(sqlmock.NewRows(projectColumns()).
			AddRow(id, "alice", "demo", "", now, now))

	project, err := repo.GetByName(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, id, project.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryList(t *testing.T) {
	repos, mock := newMockRepos(t)
	repo := repos.Projects.WithUser("alice")
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM projects WHERE user_id").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(projectColumns()).
			AddRow(uuid.New(), "alice", "one", "", now, now).
			AddRow(uuid.New(), "alice", "two", "", now, now))

	projects, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "one", projects[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryUpdate(t *testing.T) {
	id := uuid.New()

	t.Run("updates the scoped row", func(t *testing.T) {
		repos, mock := newMockRepos(t)
		repo := repos.Projects.WithUser("alice")

		mock.ExpectExec("UPDATE projects SET").
			WithArgs("renamed", "", sqlmock.AnyArg(), id, "alice").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Update(context.Background(), &models.Project{ID: id, Name: "renamed"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows maps to ErrNotFound", func(t *testing.T) {
		repos, mock := newMockRepos(t)
		repo := repos.Projects.WithUser("alice")

		mock.ExpectExec("UPDATE projects SET").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(context.Background(), &models.Project{ID: id, Name: "renamed"})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestProjectRepositoryDelete(t *testing.T) {
	id := uuid.New()

	t.Run("deletes the scoped row", func(t *testing.T) {
		repos, mock := newMockRepos(t)
		repo := repos.Projects.WithUser("alice")

		mock.ExpectExec("DELETE FROM projects WHERE").
			WithArgs(id, "alice").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Delete(context.Background(), id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("someone else's row is invisible", func(t *testing.T) {
		repos, mock := newMockRepos(t)
		repo := repos.Projects.WithUser("mallory")

		mock.ExpectExec("DELETE FROM projects WHERE").
			WithArgs(id, "mallory").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(context.Background(), id)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}
