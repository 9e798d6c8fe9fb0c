package roomdoc

import (
	"errors"
	"sync"
	"time"

	"github.com/marloweh/tutti/internal/domain"
)

// DefaultCapacity bounds how many rooms one process will hold.
const DefaultCapacity = 1000

var ErrCapacityReached = errors.New("room store capacity reached")

type memoryRoom struct {
	room         domain.Room
	participants []domain.Participant
	hostSeen     time.Time
	listeners    map[*memoryListener]struct{}
}

type memoryListener struct {
	onData DataHandler

	mu       sync.Mutex
	canceled bool
}

// Memory is the in-process Store. Mutations notify room listeners
// synchronously with a deep copy of the document, so a listener can never
// observe a partially applied change or mutate shared state.
type Memory struct {
	mu       sync.Mutex
	rooms    map[string]*memoryRoom
	capacity int
	now      func() time.Time
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		rooms:    make(map[string]*memoryRoom),
		capacity: capacity,
		now:      time.Now,
	}
}

func (m *Memory) CreateRoom(room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[room.ID]; exists {
		return domain.ErrRoomAlreadyExists
	}
	if len(m.rooms) >= m.capacity {
		return ErrCapacityReached
	}

	m.rooms[room.ID] = &memoryRoom{
		room:      *room,
		hostSeen:  m.now(),
		listeners: make(map[*memoryListener]struct{}),
	}
	return nil
}

func (m *Memory) GetRoom(roomID string) (RoomData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return RoomData{}, domain.ErrRoomNotFound
	}
	return r.snapshot(), nil
}

func (m *Memory) UpdateRoomSettings(roomID string, patch SettingsPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}

	if patch.Name != nil {
		r.room.Name = *patch.Name
	}
	if patch.IsPrivate != nil {
		r.room.IsPrivate = *patch.IsPrivate
	}
	if patch.MaxParticipants != nil && *patch.MaxParticipants > 0 {
		r.room.MaxParticipants = *patch.MaxParticipants
	}
	if patch.AllowGuestJoin != nil {
		r.room.Settings.AllowGuestJoin = *patch.AllowGuestJoin
	}
	if patch.RequireApproval != nil {
		r.room.Settings.RequireApproval = *patch.RequireApproval
	}
	if patch.EnableChat != nil {
		r.room.Settings.EnableChat = *patch.EnableChat
	}
	if patch.EnableVoice != nil {
		r.room.Settings.EnableVoice = *patch.EnableVoice
	}
	if patch.Tempo != nil && *patch.Tempo > 0 {
		r.room.Settings.Tempo = *patch.Tempo
	}
	if patch.Key != nil {
		r.room.Settings.Key = *patch.Key
	}
	if patch.Scale != nil {
		r.room.Settings.Scale = *patch.Scale
	}

	m.notifyLocked(r)
	return nil
}

func (m *Memory) TouchActivity(roomID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.room.LastActivity = at.UnixMilli()
	r.room.LastNote = at.UnixMilli()
	return nil
}

func (m *Memory) DeleteRoom(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	delete(m.rooms, roomID)
	r.listeners = make(map[*memoryListener]struct{})
	return nil
}

func (m *Memory) AddParticipant(roomID string, p domain.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if len(r.participants) >= r.room.MaxParticipants {
		return domain.ErrRoomFull
	}

	for i := range r.participants {
		if r.participants[i].ID == p.ID {
			// Rejoin replaces the stale entry.
			r.participants[i] = p
			m.notifyLocked(r)
			return nil
		}
	}

	if len(r.participants) == 0 || p.ID == r.room.CreatedBy {
		p.GrantHost()
	}
	r.participants = append(r.participants, p)

	m.notifyLocked(r)
	return nil
}

func (m *Memory) RemoveParticipant(roomID, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}

	idx := -1
	for i := range r.participants {
		if r.participants[i].ID == participantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrParticipantNotFound
	}

	wasHost := r.participants[idx].IsHost()
	r.participants = append(r.participants[:idx], r.participants[idx+1:]...)

	// Roster order is join order, so the head is the longest-present
	// remaining participant.
	if wasHost && len(r.participants) > 0 {
		r.participants[0].GrantHost()
		r.room.CreatedBy = r.participants[0].ID
	}

	m.notifyLocked(r)
	return nil
}

func (m *Memory) UpdateParticipantInstrument(roomID, participantID, instrumentName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}

	for i := range r.participants {
		if r.participants[i].ID == participantID {
			instr, _ := domain.ParseInstrument(instrumentName)
			r.participants[i].Instrument = instr
			r.participants[i].InstrumentName = instr.String()
			m.notifyLocked(r)
			return nil
		}
	}
	return domain.ErrParticipantNotFound
}

func (m *Memory) SetParticipantConnection(roomID, participantID string, quality domain.ConnectionQuality) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}

	for i := range r.participants {
		if r.participants[i].ID == participantID {
			if r.participants[i].Connection == quality {
				// Unchanged quality is not worth a roster broadcast.
				return nil
			}
			r.participants[i].Connection = quality
			m.notifyLocked(r)
			return nil
		}
	}
	return domain.ErrParticipantNotFound
}

func (m *Memory) ToggleParticipantMute(roomID, participantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return false, domain.ErrRoomNotFound
	}

	for i := range r.participants {
		if r.participants[i].ID == participantID {
			r.participants[i].IsMuted = !r.participants[i].IsMuted
			muted := r.participants[i].IsMuted
			m.notifyLocked(r)
			return muted, nil
		}
	}
	return false, domain.ErrParticipantNotFound
}

func (m *Memory) Participants(roomID string) ([]domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return r.snapshot().Participants, nil
}

func (m *Memory) SetHostLiveness(roomID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.hostSeen = at
	return nil
}

func (m *Memory) HostLiveness(roomID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return time.Time{}, domain.ErrRoomNotFound
	}
	return r.hostSeen, nil
}

func (m *Memory) Listen(roomID string, onData DataHandler, onError ErrorHandler) (func(), error) {
	m.mu.Lock()

	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrRoomNotFound
	}

	l := &memoryListener{onData: onData}
	r.listeners[l] = struct{}{}
	initial := r.snapshot()
	m.mu.Unlock()

	// Listeners get the current document immediately so they never start
	// from a blank view.
	l.deliver(initial)

	return func() {
		l.mu.Lock()
		l.canceled = true
		l.mu.Unlock()

		m.mu.Lock()
		if room, ok := m.rooms[roomID]; ok {
			delete(room.listeners, l)
		}
		m.mu.Unlock()
	}, nil
}

func (m *Memory) Rooms() ([]RoomData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RoomData, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.snapshot())
	}
	return out, nil
}

func (m *Memory) notifyLocked(r *memoryRoom) {
	data := r.snapshot()
	for l := range r.listeners {
		l.deliver(data)
	}
}

func (l *memoryListener) deliver(data RoomData) {
	l.mu.Lock()
	canceled := l.canceled
	l.mu.Unlock()
	if !canceled {
		l.onData(data)
	}
}

func (r *memoryRoom) snapshot() RoomData {
	participants := make([]domain.Participant, len(r.participants))
	copy(participants, r.participants)
	for i := range participants {
		perms := make([]domain.Permission, len(participants[i].Permissions))
		copy(perms, participants[i].Permissions)
		participants[i].Permissions = perms
	}
	return RoomData{
		Room:         r.room,
		Participants: participants,
	}
}
