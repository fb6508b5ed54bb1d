package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/dockhand-io/dockhand/internal/core"
)

// Store is the durable layer: control-plane state in a relational database
// with transactional writes. It is the authoritative read path.
type Store struct {
	db *gorm.DB
}

// OpenStore connects to Postgres, tunes the pool, and migrates the schema.
func OpenStore(dsn string) (*Store, error) {
	return openStore(postgres.Open(dsn))
}

func openStore(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&projectRow{}, &applicationRow{}, &deploymentRow{}, &routeRow{},
		&certificateRow{}, &gitRepoRow{}, &secretRow{}, &middlewareRow{},
	); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) upsert(ctx context.Context, row any) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

// --- Projects ---

func (s *Store) UpsertProject(ctx context.Context, p core.Project) error {
	row := toProjectRow(p)
	return s.upsert(ctx, &row)
}

func (s *Store) GetProject(ctx context.Context, id string) (core.Project, error) {
	var row projectRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Project{}, core.Errorf(core.KindNotFound, "project %s not found", id)
		}
		return core.Project{}, err
	}
	return row.toProject(), nil
}

func (s *Store) ListProjects(ctx context.Context) ([]core.Project, error) {
	var rows []projectRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Project, len(rows))
	for i, r := range rows {
		out[i] = r.toProject()
	}
	return out, nil
}

// DeleteProject removes the project row together with its secrets and any
// remaining applications and their deployment history, in one transaction.
// Callers stop the applications' containers first.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var appIDs []string
		if err := tx.Model(&applicationRow{}).Where("project_id = ?", id).Pluck("id", &appIDs).Error; err != nil {
			return err
		}
		if len(appIDs) > 0 {
			if err := tx.Where("app_id IN ?", appIDs).Delete(&deploymentRow{}).Error; err != nil {
				return err
			}
			if err := tx.Where("project_id = ?", id).Delete(&applicationRow{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("project_id = ?", id).Delete(&secretRow{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&projectRow{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return core.Errorf(core.KindNotFound, "project %s not found", id)
		}
		return nil
	})
}

// --- Applications ---

func (s *Store) UpsertApplication(ctx context.Context, a core.Application) error {
	row := toApplicationRow(a)
	return s.upsert(ctx, &row)
}

func (s *Store) GetApplication(ctx context.Context, id string) (core.Application, error) {
	var row applicationRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Application{}, core.Errorf(core.KindNotFound, "application %s not found", id)
		}
		return core.Application{}, err
	}
	return row.toApplication(), nil
}

func (s *Store) ListApplications(ctx context.Context) ([]core.Application, error) {
	var rows []applicationRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Application, len(rows))
	for i, r := range rows {
		out[i] = r.toApplication()
	}
	return out, nil
}

func (s *Store) ProjectApplications(ctx context.Context, projectID string) ([]core.Application, error) {
	var rows []applicationRow
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Application, len(rows))
	for i, r := range rows {
		out[i] = r.toApplication()
	}
	return out, nil
}

// DeleteApplication removes the application and its deployment history.
func (s *Store) DeleteApplication(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("app_id = ?", id).Delete(&deploymentRow{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&applicationRow{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return core.Errorf(core.KindNotFound, "application %s not found", id)
		}
		return nil
	})
}

// --- Deployments ---

func (s *Store) UpsertDeployment(ctx context.Context, d core.Deployment) error {
	row := toDeploymentRow(d)
	return s.upsert(ctx, &row)
}

func (s *Store) GetDeployment(ctx context.Context, id string) (core.Deployment, error) {
	var row deploymentRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Deployment{}, core.Errorf(core.KindNotFound, "deployment %s not found", id)
		}
		return core.Deployment{}, err
	}
	return row.toDeployment(), nil
}

// AppDeployments returns the app's deployment history, newest version first.
func (s *Store) AppDeployments(ctx context.Context, appID string, limit int) ([]core.Deployment, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []deploymentRow
	if err := s.db.WithContext(ctx).
		Where("app_id = ?", appID).
		Order("version DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Deployment, len(rows))
	for i, r := range rows {
		out[i] = r.toDeployment()
	}
	return out, nil
}

// NextDeploymentVersion allocates the next version for an app: one past the
// highest recorded version, starting at 1.
func (s *Store) NextDeploymentVersion(ctx context.Context, appID string) (int, error) {
	var last int
	err := s.db.WithContext(ctx).
		Model(&deploymentRow{}).
		Where("app_id = ?", appID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// --- Routes ---

func (s *Store) UpsertRoute(ctx context.Context, r core.Route) error {
	row := toRouteRow(r)
	return s.upsert(ctx, &row)
}

func (s *Store) GetRoute(ctx context.Context, id string) (core.Route, error) {
	var row routeRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Route{}, core.Errorf(core.KindNotFound, "route %s not found", id)
		}
		return core.Route{}, err
	}
	return row.toRoute(), nil
}

func (s *Store) ListRoutes(ctx context.Context) ([]core.Route, error) {
	var rows []routeRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Route, len(rows))
	for i, r := range rows {
		out[i] = r.toRoute()
	}
	return out, nil
}

func (s *Store) RoutesByHost(ctx context.Context, host string) ([]core.Route, error) {
	var rows []routeRow
	if err := s.db.WithContext(ctx).Where("host = ?", host).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Route, len(rows))
	for i, r := range rows {
		out[i] = r.toRoute()
	}
	return out, nil
}

func (s *Store) DeleteRoute(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&routeRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.Errorf(core.KindNotFound, "route %s not found", id)
	}
	return nil
}

// --- Certificates ---

func (s *Store) UpsertCertificate(ctx context.Context, c core.Certificate) error {
	row := toCertificateRow(c)
	return s.upsert(ctx, &row)
}

func (s *Store) GetCertificate(ctx context.Context, domain string) (core.Certificate, error) {
	var row certificateRow
	if err := s.db.WithContext(ctx).First(&row, "domain = ?", domain).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Certificate{}, core.Errorf(core.KindNotFound, "certificate %s not found", domain)
		}
		return core.Certificate{}, err
	}
	return row.toCertificate(), nil
}

func (s *Store) ListCertificates(ctx context.Context) ([]core.Certificate, error) {
	var rows []certificateRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Certificate, len(rows))
	for i, r := range rows {
		out[i] = r.toCertificate()
	}
	return out, nil
}

// ExpiringCertificates returns certificates whose expiry falls before the
// given time.
func (s *Store) ExpiringCertificates(ctx context.Context, before time.Time) ([]core.Certificate, error) {
	var rows []certificateRow
	if err := s.db.WithContext(ctx).Where("expires_at < ?", before).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Certificate, len(rows))
	for i, r := range rows {
		out[i] = r.toCertificate()
	}
	return out, nil
}

func (s *Store) DeleteCertificate(ctx context.Context, domain string) error {
	res := s.db.WithContext(ctx).Delete(&certificateRow{}, "domain = ?", domain)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.Errorf(core.KindNotFound, "certificate %s not found", domain)
	}
	return nil
}

// --- Git repos ---

func (s *Store) UpsertGitRepo(ctx context.Context, g core.GitRepo) error {
	row := toGitRepoRow(g)
	return s.upsert(ctx, &row)
}

func (s *Store) GetGitRepo(ctx context.Context, id string) (core.GitRepo, error) {
	var row gitRepoRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.GitRepo{}, core.Errorf(core.KindNotFound, "repo %s not found", id)
		}
		return core.GitRepo{}, err
	}
	return row.toGitRepo(), nil
}

func (s *Store) ListGitRepos(ctx context.Context) ([]core.GitRepo, error) {
	var rows []gitRepoRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.GitRepo, len(rows))
	for i, r := range rows {
		out[i] = r.toGitRepo()
	}
	return out, nil
}

// GitRepoByURL looks a repo up by its unique (url, branch) pair.
func (s *Store) GitRepoByURL(ctx context.Context, url, branch string) (core.GitRepo, error) {
	var row gitRepoRow
	err := s.db.WithContext(ctx).Where("url = ? AND branch = ?", url, branch).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.GitRepo{}, core.Errorf(core.KindNotFound, "repo %s@%s not found", url, branch)
		}
		return core.GitRepo{}, err
	}
	return row.toGitRepo(), nil
}

func (s *Store) DeleteGitRepo(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&gitRepoRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.Errorf(core.KindNotFound, "repo %s not found", id)
	}
	return nil
}

// --- Secrets ---

func (s *Store) UpsertSecret(ctx context.Context, sec core.Secret) error {
	row := toSecretRow(sec)
	return s.upsert(ctx, &row)
}

func (s *Store) GetSecret(ctx context.Context, projectID, name string) (core.Secret, error) {
	var row secretRow
	err := s.db.WithContext(ctx).Where("project_id = ? AND name = ?", projectID, name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Secret{}, core.Errorf(core.KindNotFound, "secret %s not found in %s", name, projectID)
		}
		return core.Secret{}, err
	}
	return row.toSecret(), nil
}

func (s *Store) ProjectSecrets(ctx context.Context, projectID string) ([]core.Secret, error) {
	var rows []secretRow
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Secret, len(rows))
	for i, r := range rows {
		out[i] = r.toSecret()
	}
	return out, nil
}

func (s *Store) DeleteSecret(ctx context.Context, projectID, name string) error {
	res := s.db.WithContext(ctx).Where("project_id = ? AND name = ?", projectID, name).Delete(&secretRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.Errorf(core.KindNotFound, "secret %s not found in %s", name, projectID)
	}
	return nil
}

// --- Middlewares ---

func (s *Store) UpsertMiddleware(ctx context.Context, m core.Middleware) error {
	row := toMiddlewareRow(m)
	return s.upsert(ctx, &row)
}

func (s *Store) GetMiddleware(ctx context.Context, name string) (core.Middleware, error) {
	var row middlewareRow
	if err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Middleware{}, core.Errorf(core.KindNotFound, "middleware %s not found", name)
		}
		return core.Middleware{}, err
	}
	return row.toMiddleware(), nil
}

func (s *Store) ListMiddlewares(ctx context.Context) ([]core.Middleware, error) {
	var rows []middlewareRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Middleware, len(rows))
	for i, r := range rows {
		out[i] = r.toMiddleware()
	}
	return out, nil
}

func (s *Store) DeleteMiddleware(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Delete(&middlewareRow{}, "name = ?", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.Errorf(core.KindNotFound, "middleware %s not found", name)
	}
	return nil
}
