package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fresh-market/internal/domain"
	"fresh-market/internal/notify"
	"fresh-market/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mock repositories for testing

type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	for _, existing := range m.users {
		if existing.RoleID() != "" && existing.RoleID() == user.RoleID() {
			return repository.ErrRoleIDTaken
		}
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) FindByRoleID(ctx context.Context, role domain.Role, roleID string) (*domain.User, error) {
	for _, user := range m.users {
		if user.Role == role && user.RoleID() == roleID {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, username, phone string) error {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.Username = username
	user.Phone = phone
	return nil
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *mockUserRepository) UpdateStoreSettings(ctx context.Context, id uuid.UUID, settings domain.StoreSettings) error {
	user, err := m.FindByID(ctx, id)
	if err != nil || user.Role != domain.RoleMerchant {
		return repository.ErrUserNotFound
	}
	user.StoreName = &settings.StoreName
	user.StoreDescription = &settings.StoreDescription
	user.Phone = settings.Phone
	return nil
}

func (m *mockUserRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.LastLogin = &at
	return nil
}

func (m *mockUserRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	user, err := m.FindByID(ctx, id)
	if err != nil || !user.IsActive {
		return repository.ErrUserNotFound
	}
	user.IsActive = false
	return nil
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	for _, token := range m.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockRefreshTokenRepository) PruneForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	var n int64
	for key, token := range m.tokens {
		if token.UserID == userID && (token.Revoked || token.ExpiresAt.Before(now)) {
			delete(m.tokens, key)
			n++
		}
	}
	return n, nil
}

// memStore backs the product, cart and order mocks so that stock effects of
// order placement are visible through the product mock.
type memStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	carts    map[uuid.UUID][]domain.CartItem
	orders   map[uuid.UUID]*domain.Order
	numbers  map[string]bool

	// placeErrs are returned by Place, one per call, before it succeeds.
	placeErrs []error
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[uuid.UUID]*domain.Product),
		carts:    make(map[uuid.UUID][]domain.CartItem),
		orders:   make(map[uuid.UUID]*domain.Order),
		numbers:  make(map[string]bool),
	}
}

func (s *memStore) addProduct(merchantID uuid.UUID, name string, price string, stock int) *domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &domain.Product{
		ID:            uuid.New(),
		MerchantID:    merchantID,
		Name:          name,
		Price:         decimal.RequireFromString(price),
		OriginalPrice: decimal.RequireFromString(price),
		Category:      domain.CategoryFruits,
		Stock:         stock,
		Unit:          domain.UnitPiece,
		Status:        domain.DeriveStatus(domain.ProductActive, stock),
		RatingAverage: decimal.Zero,
		Tags:          []string{},
		CreatedAt:     time.Now(),
	}
	s.products[p.ID] = p
	return p
}

func (s *memStore) product(id uuid.UUID) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.products[id]
}

type mockProductRepository struct {
	store *memStore
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	cp := *product
	m.store.products[product.ID] = &cp
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	existing, ok := m.store.products[product.ID]
	if !ok || existing.MerchantID != product.MerchantID {
		return nil, repository.ErrProductNotFound
	}
	cp := *product
	cp.Stock = existing.Stock
	cp.Sold = existing.Sold
	cp.Status = domain.DeriveStatus(product.Status, existing.Stock)
	m.store.products[product.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id, merchantID uuid.UUID) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	existing, ok := m.store.products[id]
	if !ok || existing.MerchantID != merchantID {
		return repository.ErrProductNotFound
	}
	delete(m.store.products, id)
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	p, ok := m.store.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) List(ctx context.Context, filter domain.ProductFilter, page domain.Page, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	var matched []*domain.Product
	for _, p := range m.store.products {
		if !filter.IncludeHidden && p.Status != domain.ProductActive {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.MerchantID != nil && p.MerchantID != *filter.MerchantID {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Featured && !p.Featured {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Query)) {
			continue
		}
		if filter.MinPrice != nil && p.Price.LessThan(*filter.MinPrice) {
			continue
		}
		if filter.MaxPrice != nil && p.Price.GreaterThan(*filter.MaxPrice) {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *mockProductRepository) UpdateStock(ctx context.Context, id, merchantID uuid.UUID, op domain.StockOperation, quantity int) (*domain.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	p, ok := m.store.products[id]
	if !ok || p.MerchantID != merchantID {
		return nil, repository.ErrProductNotFound
	}
	p.Stock = op.Apply(p.Stock, quantity)
	p.Status = domain.DeriveStatus(p.Status, p.Stock)
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) UpdateFreshness(ctx context.Context, id uuid.UUID, score int, analyzedAt time.Time, expiry *time.Time, storage *string) (*domain.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	p, ok := m.store.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	p.FreshnessScore = score
	p.FreshnessAnalyzedAt = &analyzedAt
	if expiry != nil {
		p.ExpiryDate = expiry
	}
	if storage != nil {
		p.StorageInstructions = *storage
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	p, ok := m.store.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Views++
	return nil
}

func (m *mockProductRepository) AddRating(ctx context.Context, id uuid.UUID, rating int) (*domain.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	p, ok := m.store.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	p.AddRating(rating)
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) LowStock(ctx context.Context, merchantID uuid.UUID, threshold, limit int) ([]*domain.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	out := []*domain.Product{}
	for _, p := range m.store.products {
		if p.MerchantID == merchantID && p.Status == domain.ProductActive && p.Stock <= threshold {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockProductRepository) TopSelling(ctx context.Context, merchantID *uuid.UUID, limit int) ([]*domain.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	out := []*domain.Product{}
	for _, p := range m.store.products {
		if merchantID == nil || p.MerchantID == *merchantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sold > out[j].Sold })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockProductRepository) ListByCategories(ctx context.Context, categories []domain.Category, limit int) ([]*domain.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	wanted := map[domain.Category]bool{}
	for _, c := range categories {
		wanted[c] = true
	}
	out := []*domain.Product{}
	for _, p := range m.store.products {
		if wanted[p.Category] && p.Status == domain.ProductActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockCartRepository struct {
	store *memStore
}

func (m *mockCartRepository) Get(ctx context.Context, customerID uuid.UUID) (*domain.Cart, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	cart := &domain.Cart{CustomerID: customerID, Items: []domain.CartItem{}}
	for _, item := range m.store.carts[customerID] {
		if p, ok := m.store.products[item.ProductID]; ok {
			cp := *p
			item.Product = &cp
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, nil
}

func (m *mockCartRepository) AddItem(ctx context.Context, customerID, productID uuid.UUID, quantity int, price decimal.Decimal) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	items := m.store.carts[customerID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += quantity
			items[i].Price = price
			return nil
		}
	}
	m.store.carts[customerID] = append(items, domain.CartItem{
		ProductID: productID,
		Quantity:  quantity,
		Price:     price,
		AddedAt:   time.Now(),
	})
	return nil
}

func (m *mockCartRepository) SetQuantity(ctx context.Context, customerID, productID uuid.UUID, quantity int) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	items := m.store.carts[customerID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = quantity
			return nil
		}
	}
	return repository.ErrCartItemNotFound
}

func (m *mockCartRepository) RemoveItem(ctx context.Context, customerID, productID uuid.UUID) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	items := m.store.carts[customerID]
	for i := range items {
		if items[i].ProductID == productID {
			m.store.carts[customerID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return repository.ErrCartItemNotFound
}

func (m *mockCartRepository) Clear(ctx context.Context, customerID uuid.UUID) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	delete(m.store.carts, customerID)
	return nil
}

type mockOrderRepository struct {
	store *memStore
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	cp.StatusHistory = append([]domain.StatusEntry{}, o.StatusHistory...)
	return &cp
}

// Place mirrors the transactional contract: all decrements or none.
func (m *mockOrderRepository) Place(ctx context.Context, order *domain.Order) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if len(m.store.placeErrs) > 0 {
		err := m.store.placeErrs[0]
		m.store.placeErrs = m.store.placeErrs[1:]
		return err
	}
	if len(m.store.carts[order.CustomerID]) == 0 {
		return repository.ErrCartEmpty
	}
	if m.store.numbers[order.OrderNumber] {
		return repository.ErrOrderNumberTaken
	}

	needed := map[uuid.UUID]int{}
	for _, item := range order.Items {
		needed[item.ProductID] += item.Quantity
	}
	for id, qty := range needed {
		p := m.store.products[id]
		if p == nil || p.Stock < qty {
			available := 0
			name := ""
			if p != nil {
				available = p.Stock
				name = p.Name
			}
			return &domain.InsufficientStockError{ProductID: id, ProductName: name, Requested: qty, Available: available}
		}
	}
	for id, qty := range needed {
		p := m.store.products[id]
		p.Stock -= qty
		p.Sold += qty
		p.Status = domain.DeriveStatus(p.Status, p.Stock)
	}

	m.store.numbers[order.OrderNumber] = true
	m.store.orders[order.ID] = cloneOrder(order)
	delete(m.store.carts, order.CustomerID)
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	o, ok := m.store.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *mockOrderRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, page domain.Page) ([]*domain.Order, int, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	out := []*domain.Order{}
	for _, o := range m.store.orders {
		if o.CustomerID == customerID {
			out = append(out, cloneOrder(o))
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepository) ListByMerchant(ctx context.Context, merchantID uuid.UUID, status domain.OrderStatus, page domain.Page) ([]*domain.Order, int, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	out := []*domain.Order{}
	for _, o := range m.store.orders {
		if o.HasMerchant(merchantID) && (status == "" || o.Status == status) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepository) Transition(ctx context.Context, id uuid.UUID, from domain.OrderStatus, entry domain.StatusEntry) (*domain.Order, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	o, ok := m.store.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if o.Status != from {
		return nil, repository.ErrOrderStatusConflict
	}
	o.Status = entry.Status
	o.StatusHistory = append(o.StatusHistory, entry)
	if entry.Status == domain.OrderDelivered {
		at := entry.Timestamp
		o.ActualDelivery = &at
	}
	if entry.Status == domain.OrderCancelled {
		for _, item := range o.Items {
			if p := m.store.products[item.ProductID]; p != nil {
				p.Stock += item.Quantity
				p.Sold -= item.Quantity
				if p.Sold < 0 {
					p.Sold = 0
				}
				if p.Status == domain.ProductOutOfStock {
					p.Status = domain.ProductActive
				}
			}
		}
	}
	return cloneOrder(o), nil
}

func (m *mockOrderRepository) Rate(ctx context.Context, id, customerID uuid.UUID, rating int, review *string, at time.Time) (*domain.Order, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	o, ok := m.store.orders[id]
	if !ok || o.CustomerID != customerID || o.Status != domain.OrderDelivered || o.Rating != nil {
		return nil, repository.ErrOrderNotRateable
	}
	o.Rating = &rating
	o.Review = review
	o.ReviewedAt = &at
	return cloneOrder(o), nil
}

func (m *mockOrderRepository) UpdateTracking(ctx context.Context, id uuid.UUID, trackingNumber string, estimatedDelivery *time.Time) (*domain.Order, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	o, ok := m.store.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	o.TrackingNumber = &trackingNumber
	if estimatedDelivery != nil {
		o.EstimatedDelivery = estimatedDelivery
	}
	return cloneOrder(o), nil
}

type mockFreshnessRepository struct {
	mu       sync.Mutex
	analyses []*domain.FreshnessAnalysis
}

func (m *mockFreshnessRepository) Create(ctx context.Context, analysis *domain.FreshnessAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, analysis)
	return nil
}

func (m *mockFreshnessRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.FreshnessAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.analyses {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, repository.ErrAnalysisNotFound
}

func (m *mockFreshnessRepository) ListByProduct(ctx context.Context, productID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.FreshnessAnalysis{}
	for _, a := range m.analyses {
		if a.ProductID != nil && *a.ProductID == productID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockFreshnessRepository) ListByAnalyst(ctx context.Context, analystID uuid.UUID, page domain.Page) ([]*domain.FreshnessAnalysis, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.FreshnessAnalysis{}
	for _, a := range m.analyses {
		if a.AnalystID == analystID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

// recordingPublisher captures events instead of delivering them.
type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}
