package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

// MemoryUserRepository is a map-backed user store with the same uniqueness
// rules as the users table.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]model.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: map[string]model.User{}}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.byUsernameLocked(username); ok {
		return u, nil
	}
	return model.User{}, model.ErrUserNotFound
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.byEmailLocked(email); ok {
		return u, nil
	}
	return model.User{}, model.ErrUserNotFound
}

func (r *MemoryUserRepository) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUsernameLocked(username)
	return ok, nil
}

func (r *MemoryUserRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byEmailLocked(email)
	return ok, nil
}

func (r *MemoryUserRepository) Create(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUniqueLocked(u); err != nil {
		return err
	}
	r.users[u.ID] = u
	return nil
}

func (r *MemoryUserRepository) Update(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; !ok {
		return model.ErrUserNotFound
	}
	if err := r.checkUniqueLocked(u); err != nil {
		return err
	}
	r.users[u.ID] = u
	return nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	r.users[userID] = u
	return nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return model.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) List(_ context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
	})
	return users, nil
}

func (r *MemoryUserRepository) byUsernameLocked(username string) (model.User, bool) {
	key := strings.TrimSpace(username)
	for _, u := range r.users {
		if strings.EqualFold(u.Username, key) {
			return u, true
		}
	}
	return model.User{}, false
}

func (r *MemoryUserRepository) byEmailLocked(email string) (model.User, bool) {
	key := strings.TrimSpace(email)
	if key == "" {
		return model.User{}, false
	}
	for _, u := range r.users {
		if u.Email != "" && strings.EqualFold(u.Email, key) {
			return u, true
		}
	}
	return model.User{}, false
}

func (r *MemoryUserRepository) checkUniqueLocked(u model.User) error {
	if other, ok := r.byUsernameLocked(u.Username); ok && other.ID != u.ID {
		return fmt.Errorf("username %q: %w", u.Username, model.ErrDuplicateUser)
	}
	if other, ok := r.byEmailLocked(u.Email); ok && other.ID != u.ID {
		return fmt.Errorf("email %q: %w", u.Email, model.ErrDuplicateUser)
	}
	return nil
}

type MemoryActionTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]model.ActionToken
}

func NewMemoryActionTokenRepository() *MemoryActionTokenRepository {
	return &MemoryActionTokenRepository{tokens: map[string]model.ActionToken{}}
}

func (r *MemoryActionTokenRepository) Save(_ context.Context, t model.ActionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[t.TokenHash]; exists {
		return fmt.Errorf("store action token: duplicate hash")
	}
	r.tokens[t.TokenHash] = t
	return nil
}

func (r *MemoryActionTokenRepository) Find(_ context.Context, tokenHash string) (model.ActionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenHash]
	if !ok {
		return model.ActionToken{}, model.ErrTokenNotFound
	}
	return t, nil
}

func (r *MemoryActionTokenRepository) Delete(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, tokenHash)
	return nil
}

func (r *MemoryActionTokenRepository) DeleteForUser(_ context.Context, userID string, kind model.ActionKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, t := range r.tokens {
		if t.UserID == userID && t.Kind == kind {
			delete(r.tokens, hash)
		}
	}
	return nil
}

func (r *MemoryActionTokenRepository) CleanExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var removed int64
	for hash, t := range r.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(r.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

type MemoryBikeRepository struct {
	mu     sync.RWMutex
	nextID int64
	bikes  map[int64]model.Bike
}

func NewMemoryBikeRepository() *MemoryBikeRepository {
	return &MemoryBikeRepository{bikes: map[int64]model.Bike{}}
}

func (r *MemoryBikeRepository) List(_ context.Context) ([]model.Bike, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bikes := make([]model.Bike, 0, len(r.bikes))
	for _, b := range r.bikes {
		bikes = append(bikes, b)
	}
	sort.Slice(bikes, func(i, j int) bool { return bikes[i].ID < bikes[j].ID })
	return bikes, nil
}

func (r *MemoryBikeRepository) FindByID(_ context.Context, id int64) (model.Bike, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bikes[id]
	if !ok {
		return model.Bike{}, model.ErrBikeNotFound
	}
	return b, nil
}

func (r *MemoryBikeRepository) Create(_ context.Context, b model.Bike) (model.Bike, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	b.ID = r.nextID
	r.bikes[b.ID] = b
	return b, nil
}

func (r *MemoryBikeRepository) Update(_ context.Context, b model.Bike) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bikes[b.ID]; !ok {
		return model.ErrBikeNotFound
	}
	r.bikes[b.ID] = b
	return nil
}

func (r *MemoryBikeRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bikes[id]; !ok {
		return model.ErrBikeNotFound
	}
	delete(r.bikes, id)
	return nil
}

func (r *MemoryBikeRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.bikes), nil
}

type cartLine struct {
	bikeID   int64
	quantity int
	addedAt  time.Time
}

// MemoryCartRepository joins cart lines against a MemoryBikeRepository on read.
type MemoryCartRepository struct {
	mu    sync.Mutex
	bikes *MemoryBikeRepository
	lines map[string]map[int64]cartLine
}

func NewMemoryCartRepository(bikes *MemoryBikeRepository) *MemoryCartRepository {
	return &MemoryCartRepository{bikes: bikes, lines: map[string]map[int64]cartLine{}}
}

func (r *MemoryCartRepository) Items(ctx context.Context, userID string) ([]model.CartItem, error) {
	r.mu.Lock()
	lines := make([]cartLine, 0, len(r.lines[userID]))
	for _, l := range r.lines[userID] {
		lines = append(lines, l)
	}
	r.mu.Unlock()

	sort.Slice(lines, func(i, j int) bool {
		if lines[i].addedAt.Equal(lines[j].addedAt) {
			return lines[i].bikeID < lines[j].bikeID
		}
		return lines[i].addedAt.Before(lines[j].addedAt)
	})

	items := make([]model.CartItem, 0, len(lines))
	for _, l := range lines {
		b, err := r.bikes.FindByID(ctx, l.bikeID)
		if err != nil {
			continue
		}
		items = append(items, model.CartItem{Bike: b, Quantity: l.quantity, AddedAt: l.addedAt})
	}
	return items, nil
}

func (r *MemoryCartRepository) Put(_ context.Context, userID string, bikeID int64, quantity int, addedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userLines, ok := r.lines[userID]
	if !ok {
		userLines = map[int64]cartLine{}
		r.lines[userID] = userLines
	}
	if existing, ok := userLines[bikeID]; ok {
		addedAt = existing.addedAt
	}
	userLines[bikeID] = cartLine{bikeID: bikeID, quantity: quantity, addedAt: addedAt}
	return nil
}

func (r *MemoryCartRepository) Remove(_ context.Context, userID string, bikeID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lines[userID][bikeID]; !ok {
		return model.ErrBikeNotFound
	}
	delete(r.lines[userID], bikeID)
	return nil
}

func (r *MemoryCartRepository) clear(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.lines, userID)
}

type MemoryOrderRepository struct {
	mu     sync.RWMutex
	cart   *MemoryCartRepository
	nextID int64
	orders map[int64]model.Order
}

func NewMemoryOrderRepository(cart *MemoryCartRepository) *MemoryOrderRepository {
	return &MemoryOrderRepository{cart: cart, orders: map[int64]model.Order{}}
}

func (r *MemoryOrderRepository) Place(_ context.Context, o model.Order) (model.Order, error) {
	r.mu.Lock()
	r.nextID++
	o.ID = r.nextID
	o.Items = append([]model.OrderItem(nil), o.Items...)
	r.orders[o.ID] = o
	r.mu.Unlock()

	if r.cart != nil {
		r.cart.clear(o.UserID)
	}
	return o, nil
}

func (r *MemoryOrderRepository) ListByUser(_ context.Context, userID string) ([]model.Order, error) {
	return r.filter(func(o model.Order) bool { return o.UserID == userID }), nil
}

func (r *MemoryOrderRepository) ListAll(_ context.Context) ([]model.Order, error) {
	return r.filter(func(model.Order) bool { return true }), nil
}

func (r *MemoryOrderRepository) filter(keep func(model.Order) bool) []model.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orders := make([]model.Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].OrderDate.Equal(orders[j].OrderDate) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].OrderDate.After(orders[j].OrderDate)
	})
	return orders
}

func (r *MemoryOrderRepository) UpdateStatus(_ context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return model.ErrOrderNotFound
	}
	o.Status = strings.TrimSpace(status)
	r.orders[id] = o
	return nil
}

func (r *MemoryOrderRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return model.ErrOrderNotFound
	}
	delete(r.orders, id)
	return nil
}

type MemoryAuditRepository struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Log(_ context.Context, entry model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
	return nil
}

func (r *MemoryAuditRepository) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = normalizeAuditQuery(query)

	from, err := parseOptionalAuditTime(query.From)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("parse from: %w", model.ErrInvalidInput)
	}
	to, err := parseOptionalAuditTime(query.To)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("parse to: %w", model.ErrInvalidInput)
	}

	action := strings.ToLower(strings.TrimSpace(query.Action))
	status := strings.ToLower(strings.TrimSpace(query.Status))
	actorID := strings.TrimSpace(query.ActorID)

	r.mu.Lock()
	items := make([]model.AuditEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if action != "" && strings.ToLower(entry.Action) != action {
			continue
		}
		if status != "" && strings.ToLower(entry.Status) != status {
			continue
		}
		if actorID != "" && entry.Actor.UserID != actorID {
			continue
		}
		at, timeErr := parseAuditTime(entry.OccurredAt)
		if timeErr != nil {
			continue
		}
		if !from.IsZero() && at.Before(from) {
			continue
		}
		if !to.IsZero() && at.After(to) {
			continue
		}
		items = append(items, entry)
	}
	r.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		left, _ := parseAuditTime(items[i].OccurredAt)
		right, _ := parseAuditTime(items[j].OccurredAt)
		return left.After(right)
	})

	total := len(items)
	start := min((query.Page-1)*query.Limit, total)
	end := min(start+query.Limit, total)

	return items[start:end], pageMeta(query, total), nil
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	return parseAuditTime(trimmed)
}

func parseAuditTime(raw string) (time.Time, error) {
	if value, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return value.UTC(), nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}
