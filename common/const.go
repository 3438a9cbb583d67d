package common

// Method is a JSON-RPC method name served by the daemon.
type Method string

const (
	METHOD_SYSTEM_GET_VERSION Method = "system.getVersion"

	METHOD_TASK_ENQUEUE         Method = "task.enqueue"
	METHOD_TASK_ENQUEUE_ARCHIVE Method = "task.enqueueArchive"
	METHOD_TASK_LIST            Method = "task.list"
	METHOD_TASK_PAUSE           Method = "task.pause"
	METHOD_TASK_RESUME          Method = "task.resume"
	METHOD_TASK_CANCEL          Method = "task.cancel"

	METHOD_CACHE_STATS      Method = "cache.stats"
	METHOD_CACHE_PURGE      Method = "cache.purge"
	METHOD_CACHE_TOGGLE_PIN Method = "cache.togglePin"

	METHOD_IDENTIFIER_VERIFY  Method = "identifier.verify"
	METHOD_IDENTIFIER_METRICS Method = "identifier.metrics"

	METHOD_LIMITER_STATUS       Method = "limiter.status"
	METHOD_BANDWIDTH_USAGE      Method = "bandwidth.usage"
	METHOD_BANDWIDTH_SET_BUDGET Method = "bandwidth.setBudget"
)

// TCPHost is the loopback host used by the TCP fallback transport.
const TCPHost = "127.0.0.1"

// DefaultTCPPort is the TCP fallback port when the socket transport is
// unavailable.
const DefaultTCPPort = 4269
