package render

// newsTemplate はニュース配信メールのテンプレート。
// *|CURRENT_YEAR|* などのマージタグはMailchimp側で展開される。
const newsTemplate = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width,initial-scale=1" />
    <title>{{.Title}}</title>
    <style>
      * { margin: 0; padding: 0; box-sizing: border-box; }
      body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif; background: #f4f4f4; }
      .email-container { max-width: 600px; margin: 0 auto; background: #ffffff; }
      .view-browser { background: #f9f9f9; text-align: center; padding: 12px; font-size: 12px; }
      .view-browser a { color: #333; text-decoration: underline; }
      .header { background: #ffffff; padding: 30px 20px; text-align: center; border-bottom: 3px solid #ae8a4c; }
      .logo { max-width: 280px; height: auto; }
      .section-title { background: #ae8a4c; color: #ffffff; padding: 16px 20px; font-size: 18px; font-weight: 700; }
      .content { padding: 30px 20px; color: #333333; line-height: 1.6; font-size: 15px; }
      .content p { margin-bottom: 16px; }
      .hero-section { padding: 20px; }
      .hero-image { width: 100%; height: auto; display: block; border-radius: 4px; }
      .footer { background: #ae8a4c; padding: 20px; color: #333333; font-size: 11px; text-align: center; }
    </style>
  </head>
  <body>
    <div class="email-container">
      <div class="view-browser">
        <a href="{{.ArticleURL}}" target="_blank" rel="noopener">View this email in your browser</a>
      </div>
      <div class="header">
        <img src="{{.LogoURL}}" alt="{{.BrandName}}" class="logo" />
      </div>
      <div class="section-title">Get our Latest update</div>
      <div class="content">
        <h2 style="font-size:22px; margin-bottom:20px; color:#333; font-weight:700;">{{.Title}}</h2>
        {{- if .Excerpt}}
        <div>{{.Excerpt}}</div>
        {{- end}}
      </div>
      {{- if .HeroURL}}
      <div class="hero-section">
        <img src="{{.HeroURL}}" alt="{{.HeroAlt}}" class="hero-image" />
      </div>
      {{- end}}
      <div class="footer">
        <p style="margin-bottom:10px">Copyright (C) *|CURRENT_YEAR|* *|LIST:COMPANY|* All rights reserved.</p>
        <p>You're receiving this because you subscribed to {{.BrandName}} updates.</p>
        <p><a href="*|UNSUB|*">Unsubscribe</a> | <a href="*|UPDATE_PROFILE|*">Update Preferences</a></p>
      </div>
    </div>
  </body>
</html>
`
