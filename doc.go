// Package avplayer decodes a movie into a stream of RGBA frames.
//
// A Player pulls NV12 samples from a demuxer session, converts them on a
// single-threaded GPU executor, paces them to the wall clock or to the audio
// sink position, and fans them out to frame consumers. Audio is forwarded to
// an audio sink as is. In loop mode the player restarts the read pass every
// time the asset is played through.
package avplayer
