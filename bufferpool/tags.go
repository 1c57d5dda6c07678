package bufferpool

// MemoryTag enumerates the memory categories the accountant tracks
// per-tag usage for (spec §3, §9 "tagged union for memory tags"). The
// eviction algorithm itself is tag-blind: tags only affect accounting,
// never eviction order (spec Non-goals: no fairness across tags).
type MemoryTag uint8

const (
	TagBaseTable MemoryTag = iota
	TagHashTable
	TagOrderBy
	TagArtifact
	TagAllocSet
	TagExtension
	TagTransaction
	TagInMemoryTable
	TagCSV
	TagParquet
	TagOrcFile

	// MemoryTagCount is the compile-time size of the per-tag counter
	// array; MemoryTag values must stay below it.
	MemoryTagCount
)

func (t MemoryTag) String() string {
	switch t {
	case TagBaseTable:
		return "BASE_TABLE"
	case TagHashTable:
		return "HASH_TABLE"
	case TagOrderBy:
		return "ORDER_BY"
	case TagArtifact:
		return "ARTIFACT"
	case TagAllocSet:
		return "ALLOC_SET"
	case TagExtension:
		return "EXTENSION"
	case TagTransaction:
		return "TRANSACTION"
	case TagInMemoryTable:
		return "IN_MEMORY_TABLE"
	case TagCSV:
		return "CSV"
	case TagParquet:
		return "PARQUET"
	case TagOrcFile:
		return "ORC_FILE"
	default:
		return "UNKNOWN"
	}
}
