package coord

import "github.com/redis/go-redis/v9"

// Lua scripts for operations that must read and write multiple keys
// atomically. Single commands cover most of the client; these cover the
// compound cases: lock handoff, registered-recipient checks, versioned
// writes, and status transitions.
//
// Convention: scripts never read the Redis clock. The caller passes the
// current wall time in milliseconds as an ARGV so results are deterministic
// and testable.

// lockAcquireScript attempts to take the lock for the waiter entry at the
// head of the queue. Expired waiters ahead of the caller are pruned first
// (their deadline already passed, so their owners have given up or died).
//
// KEYS[1] lock hash, KEYS[2] waiter list, KEYS[3] locked-paths set
// ARGV[1] waiter entry, ARGV[2] agent id, ARGV[3] now ms, ARGV[4] path
// Returns 1 if the lock was granted to the caller, 0 otherwise.
var lockAcquireScript = redis.NewScript(`
while true do
	local head = redis.call('LINDEX', KEYS[2], 0)
	if not head then break end
	if head == ARGV[1] then break end
	local deadline = tonumber(string.match(head, '^(%d+)'))
	if deadline and deadline >= tonumber(ARGV[3]) then break end
	redis.call('LPOP', KEYS[2])
end
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
if redis.call('LINDEX', KEYS[2], 0) ~= ARGV[1] then
	return 0
end
redis.call('LPOP', KEYS[2])
redis.call('HSET', KEYS[1], 'path', ARGV[4], 'holder_id', ARGV[2], 'acquired_at_ms', ARGV[3])
redis.call('SADD', KEYS[3], ARGV[4])
return 1
`)

// lockReleaseScript releases a lock only if the caller holds it.
//
// KEYS[1] lock hash, KEYS[2] locked-paths set
// ARGV[1] agent id, ARGV[2] path
// Returns 1 on release, 0 if the caller is not the holder.
var lockReleaseScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'holder_id')
if not holder or holder ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[2])
return 1
`)

// lockReleaseAllScript releases every lock held by one agent in a single
// atomic sweep. Used for cleanup after a crash. Lock keys are derived from
// the prefix argument, which is safe here because each instance runs against
// its own non-clustered Redis.
//
// KEYS[1] locked-paths set
// ARGV[1] agent id, ARGV[2] lock key prefix
// Returns the number of locks released.
var lockReleaseAllScript = redis.NewScript(`
local released = 0
for _, path in ipairs(redis.call('SMEMBERS', KEYS[1])) do
	local key = ARGV[2] .. path
	if redis.call('HGET', key, 'holder_id') == ARGV[1] then
		redis.call('DEL', key)
		redis.call('SREM', KEYS[1], path)
		released = released + 1
	end
end
return released
`)

// sendScript enqueues a message for a single registered recipient. The
// registration check and the push happen atomically so an unknown recipient
// is reported to the sender before anything is queued.
//
// KEYS[1] agents set, KEYS[2] message id sequence, KEYS[3] recipient queue
// ARGV[1] recipient id, ARGV[2] message body json
// Returns the assigned message id, or -1 if the recipient is not registered.
var sendScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
	return -1
end
local id = redis.call('INCR', KEYS[2])
redis.call('RPUSH', KEYS[3], id .. '|' .. ARGV[2])
return id
`)

// broadcastScript enqueues one copy of a message for every currently
// registered agent, all under the same message id.
//
// KEYS[1] agents set, KEYS[2] message id sequence
// ARGV[1] queue key prefix, ARGV[2] message body json
// Returns the assigned message id, or 0 if no agents are registered.
var broadcastScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
if #members == 0 then
	return 0
end
local id = redis.call('INCR', KEYS[2])
local entry = id .. '|' .. ARGV[2]
for _, name in ipairs(members) do
	redis.call('RPUSH', ARGV[1] .. name, entry)
end
return id
`)

// stateSetScript writes a state entry unconditionally, incrementing its
// version by exactly one.
//
// KEYS[1] state hash, KEYS[2] state key index set
// ARGV[1] key name, ARGV[2] value, ARGV[3] now ms
// Returns the new version.
var stateSetScript = redis.NewScript(`
local version = tonumber(redis.call('HGET', KEYS[1], 'version')) or 0
version = version + 1
redis.call('HSET', KEYS[1], 'key', ARGV[1], 'value', ARGV[2], 'version', version, 'updated_at_ms', ARGV[3])
redis.call('SADD', KEYS[2], ARGV[1])
return version
`)

// stateCASScript writes a state entry only if its current version matches
// the caller's expectation. A missing entry has version 0, so expected
// version 0 creates the entry.
//
// KEYS[1] state hash, KEYS[2] state key index set
// ARGV[1] key name, ARGV[2] expected version, ARGV[3] value, ARGV[4] now ms
// Returns the new version on success, 0 on version mismatch.
var stateCASScript = redis.NewScript(`
local version = tonumber(redis.call('HGET', KEYS[1], 'version')) or 0
if version ~= tonumber(ARGV[2]) then
	return 0
end
version = version + 1
redis.call('HSET', KEYS[1], 'key', ARGV[1], 'value', ARGV[3], 'version', version, 'updated_at_ms', ARGV[4])
redis.call('SADD', KEYS[2], ARGV[1])
return version
`)

// agentRegisterScript creates an agent record, or refreshes role, pid, and
// heartbeat if the agent re-registers after a restart. Re-registration from
// a terminal status is refused so a crashed agent cannot resurrect itself.
//
// KEYS[1] agent hash, KEYS[2] agents set
// ARGV[1] agent id, ARGV[2] role, ARGV[3] pid, ARGV[4] now ms
// Returns 1 on create, 0 on refresh, -1 if the agent is in a terminal status.
var agentRegisterScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	redis.call('HSET', KEYS[1],
		'id', ARGV[1], 'role', ARGV[2], 'pid', ARGV[3],
		'status', 'spawned', 'spawned_at_ms', ARGV[4], 'last_heartbeat_ms', ARGV[4],
		'current_task', '', 'last_error', '', 'completed_at_ms', 0)
	redis.call('SADD', KEYS[2], ARGV[1])
	return 1
end
if status == 'completed' or status == 'failed' or status == 'terminated' then
	return -1
end
redis.call('HSET', KEYS[1], 'role', ARGV[2], 'pid', ARGV[3], 'last_heartbeat_ms', ARGV[4])
redis.call('SADD', KEYS[2], ARGV[1])
return 0
`)

// statusUpdateScript applies a lifecycle transition if the current status
// permits it. The caller supplies the set of statuses the new status may be
// reached from, so the state machine lives in one place on the Go side.
//
// KEYS[1] agent hash
// ARGV[1] new status, ARGV[2] now ms, ARGV[3] "1" if new status is terminal,
// ARGV[4] current task ("-" keeps the existing value),
// ARGV[5] last error ("-" keeps the existing value),
// ARGV[6..] statuses the transition is allowed from
// Returns 1 on transition, 0 if the status is already the requested one,
// -1 if the transition is not permitted, -2 if the agent does not exist.
var statusUpdateScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
	return -2
end
local function setDetail()
	if ARGV[4] ~= '-' then
		redis.call('HSET', KEYS[1], 'current_task', ARGV[4])
	end
	if ARGV[5] ~= '-' then
		redis.call('HSET', KEYS[1], 'last_error', ARGV[5])
	end
end
if current == ARGV[1] then
	setDetail()
	return 0
end
local allowed = false
for i = 6, #ARGV do
	if current == ARGV[i] then
		allowed = true
		break
	end
end
if not allowed then
	return -1
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'last_heartbeat_ms', ARGV[2])
if ARGV[3] == '1' then
	redis.call('HSET', KEYS[1], 'completed_at_ms', ARGV[2])
end
setDetail()
return 1
`)

// heartbeatScript refreshes an agent's liveness timestamp. Terminal agents
// are left untouched so a straggling process cannot mask its own failure.
//
// KEYS[1] agent hash
// ARGV[1] now ms
// Returns 1 on refresh, 0 if the agent does not exist, -1 if terminal.
var heartbeatScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return 0
end
if status == 'completed' or status == 'failed' or status == 'terminated' then
	return -1
end
redis.call('HSET', KEYS[1], 'last_heartbeat_ms', ARGV[1])
return 1
`)
