package enum

type ReaderType string
type OutputFormat string
type KVStoreType string

const (
	ReaderTypeRPC  ReaderType = "rpc"
	ReaderTypeGeth ReaderType = "geth"
)

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatCSV  OutputFormat = "csv"
)

const (
	KVStoreTypeBadger KVStoreType = "badger"
)
