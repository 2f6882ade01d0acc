package drafting

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chazu/cadgrade/pkg/kernel"
)

const binarySentinel = "AutoCAD Binary DXF"

// pair is one DXF group: an integer code followed by its value line.
type pair struct {
	code  int
	value string
}

// rawEntity is an ENTITIES section record with its groups.
type rawEntity struct {
	typ    string
	groups []pair
}

func (e rawEntity) float(code int) float64 {
	for _, p := range e.groups {
		if p.code == code {
			f, _ := strconv.ParseFloat(p.value, 64)
			return f
		}
	}
	return 0
}

func (e rawEntity) integer(code int) int {
	for _, p := range e.groups {
		if p.code == code {
			n, _ := strconv.Atoi(p.value)
			return n
		}
	}
	return 0
}

func (e rawEntity) point(xCode int) [3]float64 {
	return [3]float64{e.float(xCode), e.float(xCode + 10), e.float(xCode + 20)}
}

// scanEntities reads the group stream and returns the records of the
// ENTITIES section in file order.
func scanEntities(r io.Reader) ([]rawEntity, error) {
	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(binarySentinel)); bytes.Equal(head, []byte(binarySentinel)) {
		return nil, fmt.Errorf("binary DXF is not supported")
	}

	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		out       []rawEntity
		section   string
		expectSec bool
		cur       *rawEntity
		line      int
		sections  int
		sawEOF    bool
	)
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	for sc.Scan() {
		line++
		codeText := strings.TrimSpace(sc.Text())
		if codeText == "" {
			continue
		}
		code, err := strconv.Atoi(codeText)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid group code %q", line, codeText)
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("line %d: group %d has no value", line, code)
		}
		line++
		value := strings.TrimSpace(sc.Text())

		if expectSec && code == 2 {
			section = value
			expectSec = false
			continue
		}
		if code != 0 {
			if cur != nil {
				cur.groups = append(cur.groups, pair{code, value})
			}
			continue
		}

		flush()
		switch value {
		case "SECTION":
			expectSec = true
			sections++
		case "ENDSEC":
			section = ""
		case "EOF":
			sawEOF = true
		default:
			if section == "ENTITIES" {
				cur = &rawEntity{typ: value}
			}
		}
		if sawEOF {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	if sections == 0 {
		return nil, fmt.Errorf("no SECTION found")
	}
	return out, nil
}

// countEntities tallies the counted types.
func countEntities(raw []rawEntity) kernel.EntityCounts {
	counts := kernel.NewEntityCounts()
	for _, e := range raw {
		t := kernel.EntityType(e.typ)
		if _, ok := counts[t]; ok {
			counts[t]++
		}
	}
	return counts
}

// rawGeometry extracts geometric entities straight from the group stream.
// It is the fallback when the structured reader rejects a file.
func rawGeometry(raw []rawEntity) kernel.Entities {
	var ents kernel.Entities
	for i := 0; i < len(raw); i++ {
		e := raw[i]
		switch e.typ {
		case "LINE":
			ents.Lines = append(ents.Lines, kernel.Line{Start: e.point(10), End: e.point(11)})
		case "CIRCLE":
			ents.Circles = append(ents.Circles, kernel.Circle{Center: e.point(10), Radius: e.float(40)})
		case "ARC":
			ents.Arcs = append(ents.Arcs, kernel.Arc{
				Center:     e.point(10),
				Radius:     e.float(40),
				StartAngle: e.float(50),
				EndAngle:   e.float(51),
			})
		case "LWPOLYLINE":
			pl := kernel.Polyline{Closed: e.integer(70)&1 == 1}
			var x float64
			for _, g := range e.groups {
				switch g.code {
				case 10:
					x, _ = strconv.ParseFloat(g.value, 64)
				case 20:
					y, _ := strconv.ParseFloat(g.value, 64)
					pl.Vertices = append(pl.Vertices, [3]float64{x, y, 0})
				}
			}
			ents.Polylines = append(ents.Polylines, pl)
		case "POLYLINE":
			pl := kernel.Polyline{Closed: e.integer(70)&1 == 1}
			for i+1 < len(raw) && raw[i+1].typ == "VERTEX" {
				i++
				pl.Vertices = append(pl.Vertices, raw[i].point(10))
			}
			ents.Polylines = append(ents.Polylines, pl)
		}
	}
	return ents
}
