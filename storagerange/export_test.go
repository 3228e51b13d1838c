package storagerange

// CachedRoots returns the number of cached intra-block state roots.
func (p *Paginator) CachedRoots() int {
	return p.roots.Len()
}
