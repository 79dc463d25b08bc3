package model

// indexer gives a unique variable to each (course, faculty, room, time slot) combination and vice versa.
// All attributes are positions within the sorted collections of an Instance
type indexer interface {
	// Returns the variable of a combination, false when the faculty is not eligible for the course
	Index(course, faculty, room, slot int) (uint64, bool)
	// Returns the combination of a variable
	Attributes(variable uint64) (course, faculty, room, slot int)
}

var _ indexer = (*variableSpace)(nil)

type tuple struct {
	course, faculty, room, slot int
}

// variableSpace holds one 1-based variable per eligible combination, laid out course by course so that
// variables are ordered by course, faculty, room and time slot. The lookup tables are built once and shared
// by the constraint compiler and the result extractor
type variableSpace struct {
	rooms, slots int

	tuples        []tuple    // tuples[v-1] is the combination of variable v
	offsets       []uint64   // Per course, number of variables created before it
	ranks         [][]int    // Per course and faculty, rank among the eligible faculty or -1
	byCourse      [][]uint64 // Per course
	byRoomSlot    [][]uint64 // Per room*slots + slot
	byFacultySlot [][]uint64 // Per faculty*slots + slot
	byFaculty     [][]uint64 // Per faculty
}

func newVariableSpace(instance *Instance, maxVariables uint64) (*variableSpace, error) {
	variables := instance.Variables()
	if maxVariables > 0 && variables > maxVariables {
		return nil, VariableSpaceError{Variables: variables, Limit: maxVariables}
	}

	courses, faculty := len(instance.Courses), len(instance.Faculty)
	rooms, slots := len(instance.Rooms), len(instance.TimeSlots)

	space := &variableSpace{
		rooms:         rooms,
		slots:         slots,
		tuples:        make([]tuple, 0, variables),
		offsets:       make([]uint64, courses),
		ranks:         make([][]int, courses),
		byCourse:      make([][]uint64, courses),
		byRoomSlot:    make([][]uint64, rooms*slots),
		byFacultySlot: make([][]uint64, faculty*slots),
		byFaculty:     make([][]uint64, faculty),
	}

	for course := range courses {
		space.offsets[course] = uint64(len(space.tuples))
		space.ranks[course] = make([]int, faculty)
		for i := range space.ranks[course] {
			space.ranks[course][i] = -1
		}
		space.byCourse[course] = make([]uint64, 0, len(instance.eligible[course])*rooms*slots)

		for rank, facultyMember := range instance.eligible[course] {
			space.ranks[course][facultyMember] = rank
			for room := range rooms {
				for slot := range slots {
					space.tuples = append(space.tuples, tuple{course, facultyMember, room, slot})
					variable := uint64(len(space.tuples))

					space.byCourse[course] = append(space.byCourse[course], variable)
					space.byRoomSlot[room*slots+slot] = append(space.byRoomSlot[room*slots+slot], variable)
					space.byFacultySlot[facultyMember*slots+slot] = append(space.byFacultySlot[facultyMember*slots+slot], variable)
					space.byFaculty[facultyMember] = append(space.byFaculty[facultyMember], variable)
				}
			}
		}
	}

	return space, nil
}

func (space *variableSpace) Variables() uint64 {
	return uint64(len(space.tuples))
}

func (space *variableSpace) Index(course, faculty, room, slot int) (uint64, bool) {
	if course < 0 || course >= len(space.ranks) || faculty < 0 || faculty >= len(space.ranks[course]) ||
		room < 0 || room >= space.rooms || slot < 0 || slot >= space.slots {
		return 0, false
	}
	rank := space.ranks[course][faculty]
	if rank < 0 {
		return 0, false
	}
	return space.offsets[course] + uint64((rank*space.rooms+room)*space.slots+slot) + 1, true
}

func (space *variableSpace) Attributes(variable uint64) (course, faculty, room, slot int) {
	t := space.tuples[variable-1]
	return t.course, t.faculty, t.room, t.slot
}
