package redis

// mutationScript applies one aggregate mutation atomically.
//
//	KEYS[1] aggregate document
//	ARGV[1] expected version
//	ARGV[2] kind: append | replace | increment
//	ARGV[3] list name
//	ARGV[4] JSON payload: elements, or [{index,id,delta}] for increment
//
// Replies with the new version, or an error starting with VERSIONCONFLICT.
const mutationScript = `
local key = KEYS[1]
local expected = tonumber(ARGV[1])
local kind, list, payload = ARGV[2], ARGV[3], ARGV[4]

local raw = redis.call('JSON.GET', key, '$.version')
local current, hasVersion = 0, false
if raw then
  local v = cjson.decode(raw)[1]
  if v then
    current, hasVersion = tonumber(v), true
  end
end
if current ~= expected then
  return redis.error_reply('VERSIONCONFLICT stored ' .. current .. ' expected ' .. expected)
end

if kind == 'increment' then
  if not raw then
    return redis.error_reply('VERSIONCONFLICT aggregate missing')
  end
  local deltas = cjson.decode(payload)
  for _, d in ipairs(deltas) do
    local p = '$.entities[' .. tostring(d.index) .. ']'
    local id = cjson.decode(redis.call('JSON.GET', key, p .. '.id'))[1]
    if id ~= d.id then
      return redis.error_reply('VERSIONCONFLICT entity moved at ' .. tostring(d.index))
    end
  end
  for _, d in ipairs(deltas) do
    local p = '$.entities[' .. tostring(d.index) .. ']'
    if cjson.decode(redis.call('JSON.GET', key, p .. '.score'))[1] == nil then
      redis.call('JSON.SET', key, p .. '.score', '0')
    end
    redis.call('JSON.NUMINCRBY', key, p .. '.score', tostring(d.delta))
  end
else
  if not raw then
    redis.call('JSON.SET', key, '$', '{"items":[],"tags":[],"entities":[],"restrictionTypes":[],"version":0}')
    hasVersion = true
  elseif redis.call('JSON.TYPE', key, '$.' .. list)[1] == nil then
    redis.call('JSON.SET', key, '$.' .. list, '[]')
  end
  if kind == 'replace' then
    redis.call('JSON.SET', key, '$.' .. list, payload)
  else
    local args = {}
    for _, e in ipairs(cjson.decode(payload)) do
      table.insert(args, cjson.encode(e))
    end
    if #args > 0 then
      redis.call('JSON.ARRAPPEND', key, '$.' .. list, unpack(args))
    end
  end
end

if not hasVersion then
  redis.call('JSON.SET', key, '$.version', '0')
end
redis.call('JSON.NUMINCRBY', key, '$.version', '1')
return current + 1
`
