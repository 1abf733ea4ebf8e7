//go:build !ci

// Package sound 客户端音效：命中、落空、击沉、胜负
package sound

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

const sampleRate = beep.SampleRate(44100)

// 没有音频文件时使用的提示音（频率 Hz，时长）
var tones = map[string]struct {
	freq float64
	dur  time.Duration
}{
	Hit:  {880, 150 * time.Millisecond},
	Miss: {220, 120 * time.Millisecond},
	Sunk: {660, 400 * time.Millisecond},
	Win:  {1046, 600 * time.Millisecond},
	Lose: {165, 600 * time.Millisecond},
	Turn: {523, 80 * time.Millisecond},
}

type SoundManager struct {
	dir string

	mu      sync.RWMutex
	buffers map[string]*beep.Buffer
	enabled bool
}

// NewSoundManager dir 为音频文件目录，文件名（去掉扩展名）即音效名
func NewSoundManager(dir string) *SoundManager {
	return &SoundManager{
		dir:     dir,
		buffers: make(map[string]*beep.Buffer),
	}
}

func (sm *SoundManager) Init() error {
	// 较小的缓冲降低延迟
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}

	sm.mu.Lock()
	sm.enabled = true
	sm.mu.Unlock()

	if err := sm.loadTones(); err != nil {
		return err
	}
	return sm.loadSoundFiles()
}

// loadTones 生成内置提示音，音频文件存在时会被覆盖
func (sm *SoundManager) loadTones() error {
	format := beep.Format{SampleRate: sampleRate, NumChannels: 2, Precision: 2}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for name, t := range tones {
		tone, err := generators.SineTone(sampleRate, t.freq)
		if err != nil {
			return fmt.Errorf("tone %s: %w", name, err)
		}
		buffer := beep.NewBuffer(format)
		buffer.Append(beep.Take(sampleRate.N(t.dur), tone))
		sm.buffers[name] = buffer
	}
	return nil
}

// loadSoundFiles 加载目录中的 mp3/wav，目录不存在时跳过
func (sm *SoundManager) loadSoundFiles() error {
	if sm.dir == "" {
		return nil
	}
	files, err := os.ReadDir(sm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read sound directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".mp3" && ext != ".wav" {
			continue
		}
		// 单个文件失败不影响其它音效
		_ = sm.loadSoundFile(name, strings.TrimSuffix(name, filepath.Ext(name)), ext)
	}
	return nil
}

func (sm *SoundManager) loadSoundFile(name, baseName, ext string) error {
	f, err := os.Open(filepath.Clean(filepath.Join(sm.dir, name)))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	}
	if err != nil {
		return err
	}
	defer func() { _ = streamer.Close() }()

	var resampled beep.Streamer = streamer
	if format.SampleRate != sampleRate {
		resampled = beep.Resample(4, format.SampleRate, sampleRate, streamer)
	}

	buffer := beep.NewBuffer(beep.Format{SampleRate: sampleRate, NumChannels: 2, Precision: 4})
	buffer.Append(resampled)

	sm.mu.Lock()
	sm.buffers[baseName] = buffer
	sm.mu.Unlock()
	return nil
}

// Play 播放音效；未初始化或不存在时静默
func (sm *SoundManager) Play(name string) {
	sm.mu.RLock()
	buffer, ok := sm.buffers[name]
	enabled := sm.enabled
	sm.mu.RUnlock()

	if !enabled || !ok {
		return
	}
	speaker.Play(buffer.Streamer(0, buffer.Len()))
}

func (sm *SoundManager) Close() {
	sm.mu.Lock()
	sm.enabled = false
	sm.mu.Unlock()
}
