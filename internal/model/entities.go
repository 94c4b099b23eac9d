package model

import "time"

// RunningData is the split container for objects whose blueprint fields never
// change after creation and whose runtime fields are continuously updated
// (§9 static/running split). StaticJSON and RunningJSON are the two columns;
// Combined is the reconstructed view used in memory.
type RunningData struct {
	StaticJSON  []byte
	RunningJSON []byte
}

// Request is the top-level user intent; it owns exactly one Workflow, whose
// static structure lives in RequestMetadata and whose mutable run state
// lives in ProcessingMetadata (see Combine/Split in idds/workflow).
type Request struct {
	RequestID    int64
	Scope        string
	Name         string
	WorkloadID   string
	Priority     int
	Status       RequestStatus
	Substatus    RequestSubstatus
	Locking      LockState
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextPollAt   time.Time
	ExpiredAt    *time.Time
	NewRetries   int
	UpdateRetries int
	MaxNewRetries int
	MaxUpdateRetries int
	NewPollPeriod    time.Duration
	UpdatePollPeriod time.Duration

	// RequestMetadata holds request_metadata.workflow (static Workflow
	// structure + build variant) as raw JSON, split on write and
	// recombined on read per §3's invariant.
	RequestMetadata []byte
	// ProcessingMetadata holds processing_metadata.workflow_data (mutable
	// run state) plus processing_metadata.operations (the Cancel/Suspend/
	// Resume audit trail from §4.E).
	ProcessingMetadata []byte

	Errors string
}

// Transform is a materialized instance of one Work node in the Request's
// Workflow. It owns its Collections and Contents.
type Transform struct {
	TransformID   int64
	RequestID     int64
	TransformType string
	TransformTag  string
	Status        TransformStatus
	Substatus     RequestSubstatus
	Locking       LockState
	CreatedAt     time.Time
	UpdatedAt     time.Time
	NextPollAt    time.Time
	NewRetries    int
	UpdateRetries int
	MaxNewRetries int
	MaxUpdateRetries int
	NewPollPeriod    time.Duration
	UpdatePollPeriod time.Duration

	// TransformMetadata holds transform_metadata.work (the static Work
	// object). RunningMetadata holds running_metadata.work_data (mutable).
	TransformMetadata []byte
	RunningMetadata   []byte

	Errors string
}

// Processing is one attempt to execute a Transform against an external
// workload manager. At most one non-terminal Processing may exist per
// Transform at a time (testable property 2).
type Processing struct {
	ProcessingID int64
	TransformID  int64
	RequestID    int64
	WorkloadID   string
	Status       ProcessingStatus
	Substatus    RequestSubstatus
	Locking      LockState
	Submitter    string
	SubmittedAt  *time.Time
	FinishedAt   *time.Time
	ExpiredAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextPollAt   time.Time

	RetryNumber     int
	MaxRetries      int
	PollingRetries  int

	// ProcessingMetadata holds processing_metadata.processing (the static
	// Processing object, including task_param). RunningMetadata holds
	// processing_metadata's mutable counterpart (running_metadata.processing_data).
	ProcessingMetadata []byte
	RunningMetadata    []byte
	OutputMetadata     []byte

	Errors string
}

// Collection is a named set of data bound to a Transform: one Input, zero or
// more Outputs, and an optional Log.
type Collection struct {
	CollID       int64
	TransformID  int64
	RequestID    int64
	RelationType CollectionRelationType
	CollType     CollectionType
	Status       CollectionStatus
	Scope        string
	Name         string

	TotalFiles      int
	ProcessedFiles  int
	ProcessingFiles int
	FailedFiles     int
	MissingFiles    int

	// External mirrors, populated from Driver/adapter metadata polls for
	// non-pseudo collections; zero-valued for PseudoDataset collections.
	ExternalBytes    int64
	ExternalTotalFiles int
	ExternalIsOpen   bool

	CollMetadata []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Content is a file-level (or sub-file range) row within a Collection.
// Uniqueness: (TransformID, CollID, MapID, Name, MinID, MaxID).
type Content struct {
	ContentID     int64
	TransformID   int64
	CollID        int64
	RequestID     int64
	MapID         int64
	ContentDepID  *int64

	Scope string
	Name  string
	MinID int64
	MaxID int64

	ContentType         string
	ContentRelationType ContentRelationType
	Status              ContentStatus
	Substatus           ContentStatus

	Bytes    int64
	MD5      string
	Adler32  string
	Path     string

	// ExternalCollID/ExternalContentID mirror the upstream collection/content
	// identity for non-pseudo collections (§3 supplement), letting the
	// Transformer correlate a re-poll without re-deriving the name.
	ExternalCollID    *int64
	ExternalContentID string

	ContentMetadata []byte

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiredAt *time.Time
}

// Message is an append-only outbound notification.
type Message struct {
	MsgID         int64
	MsgType       MessageType
	Status        MessageStatus
	Source        string
	Destination   string
	RequestID     *int64
	TransformID   *int64
	ProcessingID  *int64
	NumContents   int
	MsgContent    []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Health is a liveness row for a single agent worker thread.
type Health struct {
	Agent     string
	Hostname  string
	PID       int
	ThreadID  int64
	Payload   []byte
	UpdatedAt time.Time
}

// Command is an inbound control operation scoped to a request/transform/processing.
type Command struct {
	CmdID        int64
	CmdType      CommandType
	Status       CommandStatus
	RequestID    *int64
	TransformID  *int64
	ProcessingID *int64
	CmdContent   []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
