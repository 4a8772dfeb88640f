package xml2rfc

// Registry maps xml2rfc directory names to adapters. It is built once at
// startup and read-only afterwards, so concurrent readers need no
// locking.
type Registry struct {
	adapters map[string]Adapter
	aliases  map[string]string
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: map[string]Adapter{},
		aliases:  map[string]string{},
	}
}

// Register binds a directory name to an adapter. Registration order is
// preserved for deterministic reverse lookups.
func (r *Registry) Register(dirname string, adapter Adapter) {
	if _, exists := r.adapters[dirname]; !exists {
		r.order = append(r.order, dirname)
	}
	r.adapters[dirname] = adapter
}

// Alias declares an alternate directory name (e.g. "bibxml-rfcs" for
// "bibxml") so archived subpaths and requests normalize to one form.
func (r *Registry) Alias(alias, dirname string) {
	r.aliases[alias] = dirname
}

// Canonical resolves a requested directory name through aliases.
func (r *Registry) Canonical(dirname string) string {
	if target, ok := r.aliases[dirname]; ok {
		return target
	}
	return dirname
}

// Adapter returns the adapter registered for a (canonicalized) directory.
func (r *Registry) Adapter(dirname string) (Adapter, bool) {
	a, ok := r.adapters[r.Canonical(dirname)]
	return a, ok
}

// Dirnames lists registered directories in registration order.
func (r *Registry) Dirnames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// NewDefaultRegistry wires every known xml2rfc directory and its
// historical "bibxml-*" alias.
func NewDefaultRegistry(store RecordStore, composer Composer, doiClient DoiFetcher, tracker DraftTracker) *Registry {
	r := NewRegistry()

	r.Register("bibxml", NewRfcAdapter(store))
	r.Register("bibxml2", NewFuzzyAdapter(store, "", ""))
	r.Register("bibxml3", NewInternetDraftsAdapter(store, composer, tracker))
	r.Register("bibxml4", NewFuzzyAdapter(store, "W3C", "W3C."))
	r.Register("bibxml5", NewFuzzyAdapter(store, "3GPP", "3GPP."))
	r.Register("bibxml6", NewFallbackOnlyAdapter())
	r.Register("bibxml7", NewDoiAdapter(doiClient))
	r.Register("bibxml8", NewFuzzyAdapter(store, "IANA", "IANA."))
	r.Register("bibxml9", NewSubseriesAdapter(store))
	r.Register("bibxml-nist", NewFallbackOnlyAdapter())

	r.Alias("bibxml-rfcs", "bibxml")
	r.Alias("bibxml-misc", "bibxml2")
	r.Alias("bibxml-ids", "bibxml3")
	r.Alias("bibxml-w3c", "bibxml4")
	r.Alias("bibxml-3gpp", "bibxml5")
	r.Alias("bibxml-ieee", "bibxml6")
	r.Alias("bibxml-doi", "bibxml7")
	r.Alias("bibxml-iana", "bibxml8")
	r.Alias("bibxml-rfcsubseries", "bibxml9")
	r.Alias("bibxml-nist-historical", "bibxml-nist")

	return r
}
