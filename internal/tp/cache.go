package tp

// TemplateCache holds the templates the dispatch loop has sent to clients,
// keyed by template_id. It is owned exclusively by the single dispatch
// loop thread, so no locking is needed. On a tip change the loop discards
// the cache wholesale via Reset rather than removing entries one at a
// time, matching the "old cache destroyed, stale ids answer not-found"
// semantics.
type TemplateCache struct {
	nextID  uint64
	entries map[uint64]*BlockTemplateHandle
}

// NewTemplateCache creates an empty cache with template ids starting at 1
// (0 is reserved so a zero-valued TemplateID is recognizably "unset").
func NewTemplateCache() *TemplateCache {
	return &TemplateCache{nextID: 1, entries: make(map[uint64]*BlockTemplateHandle)}
}

// AllocateID returns the next template id and advances the generator. Ids
// are never reused for the process lifetime, even across a Reset.
func (c *TemplateCache) AllocateID() uint64 {
	id := c.nextID
	c.nextID++
	return id
}

// Insert adds a handle to the cache under its own TemplateID.
func (c *TemplateCache) Insert(handle *BlockTemplateHandle) {
	c.entries[handle.TemplateID] = handle
}

// Get looks up a template by id.
func (c *TemplateCache) Get(id uint64) (*BlockTemplateHandle, bool) {
	h, ok := c.entries[id]
	return h, ok
}

// Reset replaces the cache's contents with an empty map, as a tip change
// requires. The id generator is left untouched so ids keep increasing.
func (c *TemplateCache) Reset() {
	c.entries = make(map[uint64]*BlockTemplateHandle)
}

// Len reports the number of cached templates, mainly for tests and the
// admin status surface.
func (c *TemplateCache) Len() int { return len(c.entries) }
