package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/mail"
	"github.com/sakif/study-tracker/internal/model"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// The fakes keep rows in maps behind a mutex and enforce the same rules the
// SQL schema does: unique username, unique email, one lesson name per user,
// and the conditional update behind MarkVerified.

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account // keyed by username
	nextID   int

	// set to simulate a database failure
	getErr error
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*model.Account)}
}

func (f *fakeAccountRepo) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[a.Username]; ok {
		return apperror.AlreadyExists("username", "username already taken")
	}
	for _, existing := range f.accounts {
		if existing.Email == a.Email {
			return apperror.AlreadyExists("email", "email already registered")
		}
	}

	f.nextID++
	a.ID = fmt.Sprintf("acct-%d", f.nextID)
	stored := copyAccount(a)
	f.accounts[a.Username] = stored
	return nil
}

func (f *fakeAccountRepo) GetByUsername(_ context.Context, username string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.accounts[username]
	if !ok {
		return nil, apperror.NotFound("account", username)
	}
	return copyAccount(a), nil
}

func (f *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.accounts {
		if a.Email == email {
			return copyAccount(a), nil
		}
	}
	return nil, apperror.NotFound("account", email)
}

func (f *fakeAccountRepo) GetByVerificationToken(_ context.Context, token string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.accounts {
		if a.VerificationToken != nil && *a.VerificationToken == token {
			return copyAccount(a), nil
		}
	}
	return nil, apperror.NotFound("account", "token")
}

func (f *fakeAccountRepo) MarkVerified(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, a := range f.accounts {
		if !a.IsVerified && a.VerificationToken != nil && *a.VerificationToken == token {
			a.IsVerified = true
			a.VerificationToken = nil
			a.TokenExpiresAt = nil
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccountRepo) ReplaceVerificationToken(_ context.Context, username, token string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.accounts[username]
	if !ok || a.IsVerified {
		return false, nil
	}
	a.VerificationToken = &token
	a.TokenExpiresAt = &expiresAt
	return true, nil
}

// stored returns the row as the store holds it, bypassing getErr.
func (f *fakeAccountRepo) stored(username string) *model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[username]; ok {
		return copyAccount(a)
	}
	return nil
}

func (f *fakeAccountRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}

func copyAccount(a *model.Account) *model.Account {
	c := *a
	if a.VerificationToken != nil {
		t := *a.VerificationToken
		c.VerificationToken = &t
	}
	if a.TokenExpiresAt != nil {
		t := *a.TokenExpiresAt
		c.TokenExpiresAt = &t
	}
	return &c
}

type fakeStudyRepo struct {
	mu          sync.Mutex
	profiles    map[string]*model.Profile
	assignments map[string]*model.Assignment
	lessons     map[string]*model.Lesson
	nextID      int
	err         error
}

func newFakeStudyRepo() *fakeStudyRepo {
	return &fakeStudyRepo{
		profiles:    make(map[string]*model.Profile),
		assignments: make(map[string]*model.Assignment),
		lessons:     make(map[string]*model.Lesson),
	}
}

func (f *fakeStudyRepo) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStudyRepo) GetProfile(_ context.Context, username string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[username]
	if !ok {
		return nil, apperror.NotFound("profile", username)
	}
	c := *p
	c.Subjects = slices.Clone(p.Subjects)
	return &c, nil
}

func (f *fakeStudyRepo) SaveProfile(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	c := *p
	c.Subjects = slices.Clone(p.Subjects)
	f.profiles[p.Username] = &c
	return nil
}

func (f *fakeStudyRepo) CreateAssignment(_ context.Context, a *model.Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.id("asg")
	a.CreatedAt = time.Now().UTC()
	c := *a
	f.assignments[a.ID] = &c
	return nil
}

func (f *fakeStudyRepo) ListAssignments(_ context.Context, username string) ([]model.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []model.Assignment{}
	for _, a := range f.assignments {
		if a.Username == username {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b model.Assignment) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeStudyRepo) UpdateAssignmentStatus(_ context.Context, username, id string, status model.AssignmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[id]
	if !ok || a.Username != username {
		return apperror.NotFound("assignment", id)
	}
	a.Status = status
	return nil
}

func (f *fakeStudyRepo) DeleteAssignment(_ context.Context, username, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[id]
	if !ok || a.Username != username {
		return apperror.NotFound("assignment", id)
	}
	delete(f.assignments, id)
	return nil
}

func (f *fakeStudyRepo) CreateLesson(_ context.Context, l *model.Lesson) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.lessons {
		if existing.Username == l.Username && existing.Name == l.Name {
			return apperror.AlreadyExists("name", "lesson already exists")
		}
	}
	l.ID = f.id("lsn")
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	c := *l
	f.lessons[l.ID] = &c
	return nil
}

func (f *fakeStudyRepo) ListLessons(_ context.Context, username string) ([]model.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []model.Lesson{}
	for _, l := range f.lessons {
		if l.Username == username {
			out = append(out, *l)
		}
	}
	slices.SortFunc(out, func(a, b model.Lesson) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (f *fakeStudyRepo) MarkLessonStudied(_ context.Context, username, id string, at time.Time) (*model.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lessons[id]
	if !ok || l.Username != username {
		return nil, apperror.NotFound("lesson", id)
	}
	l.LastStudiedAt = &at
	l.ReviewCount++
	c := *l
	return &c, nil
}

func (f *fakeStudyRepo) DeleteLesson(_ context.Context, username, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lessons[id]
	if !ok || l.Username != username {
		return apperror.NotFound("lesson", id)
	}
	delete(f.lessons, id)
	return nil
}

// =========================================================================
// FAKE MAIL QUEUE
// =========================================================================

type fakeMailQueue struct {
	mu   sync.Mutex
	sent []mail.Message
	full bool
}

func (q *fakeMailQueue) Enqueue(msg mail.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.sent = append(q.sent, msg)
	return true
}

func (q *fakeMailQueue) messages() []mail.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.sent)
}

// lastToken pulls the verification token out of the most recent email.
func (q *fakeMailQueue) lastToken() string {
	msgs := q.messages()
	if len(msgs) == 0 {
		return ""
	}
	_, raw, ok := strings.Cut(msgs[len(msgs)-1].Text, "token=")
	if !ok {
		return ""
	}
	token, err := url.QueryUnescape(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return token
}

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock is a settable clock safe for concurrent reads.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
