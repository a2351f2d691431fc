package profile

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/lib/pq"
	"github.com/movaschool/movaschool/internal/model"
)

// memProfileRepo はUNIQUE制約を模倣するインメモリProfileRepository。
type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile

	createCalls int
	findErr     error
	// hiddenReads はFindByIDが行を見つけられない回数。
	// 書き込み直後の読み取り遅延の再現に使う。
	hiddenReads int
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[string]*model.Profile)}
}

func (r *memProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	profile, ok := r.profiles[id]
	if !ok {
		return nil, nil
	}
	if r.hiddenReads > 0 {
		r.hiddenReads--
		return nil, nil
	}
	copied := *profile
	return &copied, nil
}

func (r *memProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if _, exists := r.profiles[profile.ID]; exists {
		return &pq.Error{Code: "23505", Constraint: "profiles_pkey"}
	}
	copied := *profile
	r.profiles[profile.ID] = &copied
	return nil
}

func (r *memProfileRepo) Update(ctx context.Context, id string, patch model.ProfilePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[id]
	if !ok {
		return fmt.Errorf("profile not found: %s", id)
	}
	if patch.FirstName != nil {
		profile.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		profile.LastName = *patch.LastName
	}
	if patch.Age != nil {
		age := *patch.Age
		profile.Age = &age
	}
	return nil
}

func (r *memProfileRepo) UpdateAvatarURL(ctx context.Context, id string, avatarURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[id]
	if !ok {
		return fmt.Errorf("profile not found: %s", id)
	}
	profile.AvatarURL = avatarURL
	return nil
}

func (r *memProfileRepo) SearchTeachers(ctx context.Context, query string, limit int) ([]*model.Profile, error) {
	return nil, nil
}

// fakeStorage はblob.Storageのテスト用実装。
type fakeStorage struct {
	mu     sync.Mutex
	puts   []string
	putErr error
}

func (s *fakeStorage) Put(ctx context.Context, path string, r io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	s.puts = append(s.puts, path)
	return "https://cdn.example/" + path, nil
}

func (s *fakeStorage) Delete(ctx context.Context, path string) error {
	return nil
}

// countingMetrics はMetricsのテスト用実装。
type countingMetrics struct {
	mu          sync.Mutex
	provisioned int
	conflicts   int
}

func (m *countingMetrics) IncProfilesProvisioned() {
	m.mu.Lock()
	m.provisioned++
	m.mu.Unlock()
}

func (m *countingMetrics) IncProvisionConflicts() {
	m.mu.Lock()
	m.conflicts++
	m.mu.Unlock()
}

func newTestService(repo *memProfileRepo, storage *fakeStorage, metrics *countingMetrics) *Service {
	if metrics == nil {
		return NewService(repo, storage, nil, ServiceConfig{AvatarMaxSize: 1024})
	}
	return NewService(repo, storage, metrics, ServiceConfig{AvatarMaxSize: 1024})
}

// TestEnsureProfile_FirstLogin は初回ログイン時のプロフィール自動作成をテストする。
// role=student、氏名空で作成されることを確認する。
func TestEnsureProfile_FirstLogin(t *testing.T) {
	repo := newMemProfileRepo()
	metrics := &countingMetrics{}
	service := newTestService(repo, &fakeStorage{}, metrics)

	user := &model.Identity{ID: "user-1", Email: "anna@example.com", FirstName: "Анна"}
	profile, err := service.EnsureProfile(context.Background(), user)
	if err != nil {
		t.Fatalf("EnsureProfile() returned error: %v", err)
	}

	if profile.ID != "user-1" || profile.Email != "anna@example.com" {
		t.Errorf("unexpected profile: %+v", profile)
	}
	if profile.Role != model.RoleStudent {
		t.Errorf("role = %q, want student", profile.Role)
	}
	// 氏名はサインアップのメタデータからはコピーせず、空で作成される。
	if profile.FirstName != "" || profile.LastName != "" {
		t.Errorf("names should be empty on provisioning, got %q %q", profile.FirstName, profile.LastName)
	}
	if metrics.provisioned != 1 {
		t.Errorf("provisioned metric = %d, want 1", metrics.provisioned)
	}
}

// TestEnsureProfile_Existing は既存プロフィールがそのまま返り、
// 作成が行われないことをテストする。
func TestEnsureProfile_Existing(t *testing.T) {
	repo := newMemProfileRepo()
	repo.profiles["user-1"] = &model.Profile{ID: "user-1", Role: model.RoleTeacher, FirstName: "Олена"}
	service := newTestService(repo, &fakeStorage{}, nil)

	profile, err := service.EnsureProfile(context.Background(), &model.Identity{ID: "user-1"})
	if err != nil {
		t.Fatalf("EnsureProfile() returned error: %v", err)
	}
	if profile.Role != model.RoleTeacher || profile.FirstName != "Олена" {
		t.Errorf("existing profile should be returned unchanged: %+v", profile)
	}
	if repo.createCalls != 0 {
		t.Errorf("Create should not be called for existing profile, got %d calls", repo.createCalls)
	}
}

// TestEnsureProfile_DuplicateConflict はUNIQUE制約違反が成功として扱われ、
// 勝者の行へ収束することをテストする。
func TestEnsureProfile_DuplicateConflict(t *testing.T) {
	repo := newMemProfileRepo()
	// 別プロセスが先に作成した状況。EnsureProfileの事前確認では見えず、
	// Createで23505が返り、再取得で勝者の行が見える。
	repo.profiles["user-1"] = &model.Profile{ID: "user-1", Role: model.RoleStudent}
	repo.hiddenReads = 1
	metrics := &countingMetrics{}
	service := newTestService(repo, &fakeStorage{}, metrics)

	profile, err := service.EnsureProfile(context.Background(), &model.Identity{ID: "user-1", Email: "anna@example.com"})
	if err != nil {
		t.Fatalf("EnsureProfile() returned error: %v", err)
	}
	if profile == nil || profile.ID != "user-1" {
		t.Fatalf("expected the winner row, got %+v", profile)
	}
	if metrics.conflicts != 1 {
		t.Errorf("conflict metric = %d, want 1", metrics.conflicts)
	}
	if metrics.provisioned != 0 {
		t.Errorf("provisioned metric = %d, want 0 (the other process won)", metrics.provisioned)
	}
}

// TestEnsureProfile_ConflictRefetchBackoff は競合後の再取得が
// 読み取り遅延を上限付きリトライで吸収することをテストする。
func TestEnsureProfile_ConflictRefetchBackoff(t *testing.T) {
	repo := newMemProfileRepo()
	repo.profiles["user-1"] = &model.Profile{ID: "user-1", Role: model.RoleStudent}
	// 事前確認1回と再取得2回が空振りし、3回目で行が見える。
	repo.hiddenReads = 3
	service := newTestService(repo, &fakeStorage{}, nil)

	profile, err := service.EnsureProfile(context.Background(), &model.Identity{ID: "user-1"})
	if err != nil {
		t.Fatalf("EnsureProfile() returned error: %v", err)
	}
	if profile == nil {
		t.Fatal("expected profile after retries")
	}
}

// TestEnsureProfile_Concurrent は同一ユーザーへの同時プロビジョニングが
// 1行に収束することをテストする。
func TestEnsureProfile_Concurrent(t *testing.T) {
	repo := newMemProfileRepo()
	service := newTestService(repo, &fakeStorage{}, nil)
	user := &model.Identity{ID: "user-1", Email: "anna@example.com"}

	const goroutines = 8
	var wg sync.WaitGroup
	results := make([]*model.Profile, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.EnsureProfile(context.Background(), user)
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: EnsureProfile() returned error: %v", i, errs[i])
		}
		if results[i] == nil || results[i].ID != "user-1" {
			t.Fatalf("goroutine %d: unexpected profile %+v", i, results[i])
		}
	}
	if len(repo.profiles) != 1 {
		t.Errorf("expected exactly one profile row, got %d", len(repo.profiles))
	}
}

// TestUpdateProfile はパッチ更新をテストする。
func TestUpdateProfile(t *testing.T) {
	repo := newMemProfileRepo()
	age := 15
	repo.profiles["user-1"] = &model.Profile{ID: "user-1", FirstName: "", LastName: "Коваленко", Age: &age}
	service := newTestService(repo, &fakeStorage{}, nil)

	firstName := "Анна"
	updated, err := service.UpdateProfile(context.Background(), "user-1", model.ProfilePatch{FirstName: &firstName})
	if err != nil {
		t.Fatalf("UpdateProfile() returned error: %v", err)
	}
	if updated.FirstName != "Анна" {
		t.Errorf("FirstName = %q, want Анна", updated.FirstName)
	}
	// パッチに含まれないフィールドは変更されない。
	if updated.LastName != "Коваленко" || updated.Age == nil || *updated.Age != 15 {
		t.Errorf("untouched fields changed: %+v", updated)
	}
}

// TestUpdateProfile_NotFound は未プロビジョニングユーザーの更新拒否をテストする。
func TestUpdateProfile_NotFound(t *testing.T) {
	service := newTestService(newMemProfileRepo(), &fakeStorage{}, nil)

	firstName := "Анна"
	_, err := service.UpdateProfile(context.Background(), "ghost", model.ProfilePatch{FirstName: &firstName})
	apiErr, ok := err.(*model.APIError)
	if !ok || apiErr.Code != model.ErrCodeProfileNotFound {
		t.Errorf("expected PROFILE_NOT_FOUND, got %v", err)
	}
}

// TestUpdateAvatar はアバター保存とURL更新をテストする。
func TestUpdateAvatar(t *testing.T) {
	repo := newMemProfileRepo()
	repo.profiles["user-1"] = &model.Profile{ID: "user-1"}
	storage := &fakeStorage{}
	service := newTestService(repo, storage, nil)

	updated, err := service.UpdateAvatar(context.Background(), "user-1", "image/png", 512, strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("UpdateAvatar() returned error: %v", err)
	}
	if !strings.HasPrefix(updated.AvatarURL, "https://cdn.example/user-1/") || !strings.HasSuffix(updated.AvatarURL, ".png") {
		t.Errorf("unexpected avatar URL: %q", updated.AvatarURL)
	}
	if len(storage.puts) != 1 || !strings.HasPrefix(storage.puts[0], "user-1/") {
		t.Errorf("unexpected storage path: %v", storage.puts)
	}
}

// TestUpdateAvatar_Validation は容量超過と未対応形式の拒否をテストする。
func TestUpdateAvatar_Validation(t *testing.T) {
	repo := newMemProfileRepo()
	repo.profiles["user-1"] = &model.Profile{ID: "user-1"}
	service := newTestService(repo, &fakeStorage{}, nil)
	ctx := context.Background()

	_, err := service.UpdateAvatar(ctx, "user-1", "image/png", 4096, strings.NewReader("x"))
	if apiErr, ok := err.(*model.APIError); !ok || apiErr.Code != model.ErrCodeAvatarTooLarge {
		t.Errorf("expected AVATAR_TOO_LARGE, got %v", err)
	}

	_, err = service.UpdateAvatar(ctx, "user-1", "image/gif", 100, strings.NewReader("x"))
	if apiErr, ok := err.(*model.APIError); !ok || apiErr.Code != model.ErrCodeUnsupportedAvatar {
		t.Errorf("expected UNSUPPORTED_AVATAR_FORMAT, got %v", err)
	}
}

// TestUpdateAvatar_UploadFailure は保存失敗時にアバターURLが
// 変更されないことをテストする。
func TestUpdateAvatar_UploadFailure(t *testing.T) {
	repo := newMemProfileRepo()
	repo.profiles["user-1"] = &model.Profile{ID: "user-1", AvatarURL: "https://cdn.example/user-1/old.png"}
	storage := &fakeStorage{putErr: fmt.Errorf("bucket unavailable")}
	service := newTestService(repo, storage, nil)

	_, err := service.UpdateAvatar(context.Background(), "user-1", "image/png", 100, strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error when upload fails")
	}
	if repo.profiles["user-1"].AvatarURL != "https://cdn.example/user-1/old.png" {
		t.Error("avatar URL must remain unchanged after failed upload")
	}
}
