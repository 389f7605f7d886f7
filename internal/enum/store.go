package enum

type WatermarkBackend string

const (
	WatermarkBackendFile     WatermarkBackend = "file"
	WatermarkBackendDatabase WatermarkBackend = "database"
)

func (b WatermarkBackend) String() string {
	return string(b)
}

type DestinationDriver string

const (
	DestinationPostgres DestinationDriver = "postgres"
	DestinationSqlite   DestinationDriver = "sqlite"
)

func (d DestinationDriver) String() string {
	return string(d)
}

type EmailSecurity string

const (
	EmailSecurityNone     EmailSecurity = "none"
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "startTLS"
)

func (t EmailSecurity) String() string {
	return string(t)
}

// FileKind is the tabular format of a stored attachment, derived from its
// extension.
type FileKind string

const (
	FileKindUnknown FileKind = ""
	FileKindCSV     FileKind = "csv"
	FileKindXLSX    FileKind = "xlsx"
	FileKindXLS     FileKind = "xls"
)

func (k FileKind) String() string {
	return string(k)
}
