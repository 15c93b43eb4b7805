// Package openaicompat implements the adapter for OpenAI-compatible backends.
//
// Text uses {base}/chat/completions; images use {base}/images/generations
// with a request body chosen by the backend's variant:
//
//   - openai:      model, prompt, n, size, response_format
//   - siliconflow: model, prompt, negative_prompt, image_size, num_inference_steps, batch_size
//
// Image responses are read from data[0].url, images[0].url, then
// data[0].b64_json (returned as a data:image/png;base64 URI).
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    Options: providers.Options{Timeout: 2 * time.Minute, ErrorBodyLimit: 200},
//	}, logger)
//	text, err := p.CompleteText(ctx, cfg, &providers.TextRequest{Messages: msgs})
package openaicompat
