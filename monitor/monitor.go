// Package monitor serves the state of a device and its contexts over HTTP.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/ctxswitch/drawctxt"
	"github.com/sarchlab/ctxswitch/gmem"
	"github.com/sarchlab/ctxswitch/pm4"
)

// Monitor turns a device into a server that can be inspected while
// contexts are created and switched. It is also a hook that keeps the most
// recent switches.
type Monitor struct {
	deviceLock sync.Mutex
	device     *drawctxt.Device
	portNumber int
	history    int

	switchesLock sync.Mutex
	switches     []drawctxt.SwitchRecord
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		history: 64,
	}
}

// RegisterDevice sets the device to inspect and starts tracking its
// switches.
func (m *Monitor) RegisterDevice(d *drawctxt.Device) {
	m.deviceLock.Lock()
	m.device = d
	m.deviceLock.Unlock()

	m.switchesLock.Lock()
	m.switches = nil
	m.switchesLock.Unlock()

	d.AcceptHook(m)
}

func (m *Monitor) deviceOr503(w http.ResponseWriter) *drawctxt.Device {
	m.deviceLock.Lock()
	defer m.deviceLock.Unlock()

	if m.device == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, err := w.Write([]byte("No device registered"))
		dieOnErr(err)
	}

	return m.device
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithHistory sets how many switches are kept.
func (m *Monitor) WithHistory(n int) *Monitor {
	m.history = n
	return m
}

// Func keeps the record of every completed switch.
func (m *Monitor) Func(ctx sim.HookCtx) {
	if ctx.Pos != drawctxt.HookPosAfterSwitch {
		return
	}

	rec, ok := ctx.Detail.(*drawctxt.SwitchRecord)
	if !ok {
		return
	}

	m.switchesLock.Lock()
	defer m.switchesLock.Unlock()

	m.switches = append(m.switches, *rec)
	if len(m.switches) > m.history {
		m.switches = m.switches[len(m.switches)-m.history:]
	}
}

// Router returns the routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/device", m.deviceInfo)
	r.HandleFunc("/api/contexts", m.listContexts)
	r.HandleFunc("/api/context/{id}", m.contextDetails)
	r.HandleFunc("/api/context/{id}/fields", m.contextFields)
	r.HandleFunc("/api/context/{id}/regs", m.contextRegs)
	r.HandleFunc("/api/ring", m.ring)
	r.HandleFunc("/api/switches", m.listSwitches)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts serving in the background and returns the URL of the
// server.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring contexts with %s\n", url)

	router := m.Router()
	go func() {
		dieOnErr(http.Serve(listener, router))
	}()

	return url, nil
}

// OpenBrowser opens the device page of a started server.
func OpenBrowser(url string) error {
	return browser.OpenURL(url + "/api/device")
}

type surfaceRsp struct {
	Width     uint32 `json:"width"`
	Height    uint32 `json:"height"`
	Pitch     uint32 `json:"pitch"`
	GMEMPitch uint32 `json:"gmem_pitch"`
	Size      uint32 `json:"size"`
	Addr      uint32 `json:"addr,omitempty"`
}

type deviceRsp struct {
	Model         string     `json:"model"`
	GMEMSize      uint32     `json:"gmem_size"`
	Surface       surfaceRsp `json:"surface"`
	Active        string     `json:"active"`
	NumContexts   int        `json:"num_contexts"`
	RingPending   int        `json:"ring_pending"`
	RingRemaining int        `json:"ring_remaining"`
}

func (m *Monitor) deviceInfo(w http.ResponseWriter, _ *http.Request) {
	d := m.deviceOr503(w)
	if d == nil {
		return
	}

	cfg := d.Config()
	s := d.ShadowSurface()

	rsp := deviceRsp{
		Model:    cfg.Model,
		GMEMSize: cfg.GMEMSize,
		Surface: surfaceRsp{
			Width:     s.Width,
			Height:    s.Height,
			Pitch:     s.Pitch,
			GMEMPitch: s.GMEMPitch,
			Size:      s.Size,
		},
		NumContexts: len(d.Contexts()),
		RingPending: len(d.PendingWords()),
	}
	rsp.RingRemaining = int(cfg.RingSize)/4 - rsp.RingPending

	if a := d.Active(); a != nil {
		rsp.Active = a.ID()
	}

	writeJSON(w, rsp)
}

type contextRsp struct {
	ID            string      `json:"id"`
	Flags         string      `json:"flags"`
	Active        bool        `json:"active"`
	PageTableBase uint32      `json:"pt_base"`
	StateAddr     uint32      `json:"state_addr,omitempty"`
	BinBaseOffset uint32      `json:"bin_base_offset"`
	Shadow        *surfaceRsp `json:"shadow,omitempty"`
}

func contextSummary(c drawctxt.Snapshot) contextRsp {
	rsp := contextRsp{
		ID:            c.ID,
		Flags:         c.Flags.String(),
		Active:        c.Active,
		PageTableBase: c.PageTableBase,
		StateAddr:     c.StateAddr,
		BinBaseOffset: c.BinBaseOffset,
	}

	if s := c.Shadow; s != nil {
		rsp.Shadow = &surfaceRsp{
			Width:     s.Width,
			Height:    s.Height,
			Pitch:     s.Pitch,
			GMEMPitch: s.GMEMPitch,
			Size:      s.Size,
			Addr:      c.ShadowAddr,
		}
	}

	return rsp
}

func (m *Monitor) listContexts(w http.ResponseWriter, _ *http.Request) {
	d := m.deviceOr503(w)
	if d == nil {
		return
	}

	rsp := []contextRsp{}
	for _, c := range d.Snapshots() {
		rsp = append(rsp, contextSummary(c))
	}

	writeJSON(w, rsp)
}

type contextDetailRsp struct {
	contextRsp
	Sequences map[string][]string `json:"sequences,omitempty"`
}

func (m *Monitor) contextDetails(w http.ResponseWriter, r *http.Request) {
	d := m.deviceOr503(w)
	if d == nil {
		return
	}

	c, ok := findContextOr404(w, d, mux.Vars(r)["id"])
	if !ok {
		return
	}

	rsp := contextDetailRsp{
		contextRsp: contextSummary(c),
	}

	if c.Sequences != nil {
		rsp.Sequences = make(map[string][]string)
		for name, words := range c.Sequences {
			rsp.Sequences[name] = disassemble(words)
		}
	}

	writeJSON(w, rsp)
}

// contextFieldsRsp is the part of a snapshot serialized field by field.
type contextFieldsRsp struct {
	ID            string
	Flags         drawctxt.Flags
	Active        bool
	PageTableBase uint32
	BinBaseOffset uint32
	StateAddr     uint32
	Shadow        *gmem.Surface
	ShadowAddr    uint32
}

func (m *Monitor) contextFields(w http.ResponseWriter, r *http.Request) {
	d := m.deviceOr503(w)
	if d == nil {
		return
	}

	c, ok := findContextOr404(w, d, mux.Vars(r)["id"])
	if !ok {
		return
	}

	fields := contextFieldsRsp{
		ID:            c.ID,
		Flags:         c.Flags,
		Active:        c.Active,
		PageTableBase: c.PageTableBase,
		BinBaseOffset: c.BinBaseOffset,
		StateAddr:     c.StateAddr,
		Shadow:        c.Shadow,
		ShadowAddr:    c.ShadowAddr,
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&fields)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) contextRegs(w http.ResponseWriter, r *http.Request) {
	d := m.deviceOr503(w)
	if d == nil {
		return
	}

	c, ok := findContextOr404(w, d, mux.Vars(r)["id"])
	if !ok {
		return
	}

	rsp := map[string]uint32{}
	for reg, value := range c.Regs {
		rsp[fmt.Sprintf("0x%04x", reg)] = value
	}

	writeJSON(w, rsp)
}

type ringRsp struct {
	Pending int      `json:"pending"`
	Packets []string `json:"packets"`
}

func (m *Monitor) ring(w http.ResponseWriter, _ *http.Request) {
	d := m.deviceOr503(w)
	if d == nil {
		return
	}

	words := d.PendingWords()

	writeJSON(w, ringRsp{
		Pending: len(words),
		Packets: disassemble(words),
	})
}

type switchRsp struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Saved         string `json:"saved"`
	Restored      string `json:"restored"`
	SkippedHung   bool   `json:"skipped_hung"`
	PageTableBase uint32 `json:"pt_base"`
	Words         int    `json:"words"`
}

func (m *Monitor) listSwitches(w http.ResponseWriter, _ *http.Request) {
	m.switchesLock.Lock()
	rsp := make([]switchRsp, 0, len(m.switches))
	for _, rec := range m.switches {
		rsp = append(rsp, switchRsp{
			From:          rec.From,
			To:            rec.To,
			Saved:         flagsOrEmpty(rec.Saved),
			Restored:      flagsOrEmpty(rec.Restored),
			SkippedHung:   rec.SkippedHung,
			PageTableBase: rec.PageTableBase,
			Words:         rec.Words(),
		})
	}
	m.switchesLock.Unlock()

	writeJSON(w, rsp)
}

func flagsOrEmpty(f drawctxt.Flags) string {
	if f == 0 {
		return ""
	}

	return f.String()
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func findContextOr404(
	w http.ResponseWriter,
	d *drawctxt.Device,
	id string,
) (drawctxt.Snapshot, bool) {
	c, ok := d.Snapshot(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Context not found"))
		dieOnErr(err)
	}

	return c, ok
}

func disassemble(words []uint32) []string {
	packets, err := pm4.NewDecoder().Decode(words)

	lines := make([]string, 0, len(packets)+1)
	for _, p := range packets {
		lines = append(lines, p.String())
	}

	if err != nil {
		lines = append(lines, err.Error())
	}

	return lines
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
